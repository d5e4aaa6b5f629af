/*
Command mimecodec reads and writes MIME header fields and multipart bodies,
with RFC 2047 encoded-words and RFC 2231 parameter values.

  - Decodes header sections of messages, skipping malformed fields.
  - Encodes header fields with the shortest encoding that fits on lines.
  - Splits and joins multipart bodies.
  - Keeps a corpus of header sections, to check decoding for regressions.

# Commands

	mimecodec [-config mimecodec.conf] [-loglevel level] [-pedantic] ...
	mimecodec header parse [-json] [file]
	mimecodec header encode [-phrase] name text
	mimecodec header addresses name address ...
	mimecodec header references [file]
	mimecodec params parse body
	mimecodec params encode [-field name] [-extended] value [name=value ...]
	mimecodec tokens [-class atom|token|attr] [-dot] text
	mimecodec messageid message-id ...
	mimecodec multipart split [-boundary boundary] dir [file]
	mimecodec multipart join [-subtype mixed] [-boundary boundary] file ...
	mimecodec corpus add file ...
	mimecodec corpus check
	mimecodec corpus list
	mimecodec corpus print id
	mimecodec config test
	mimecodec config describe >mimecodec.conf
	mimecodec metrics
	mimecodec help [command ...]
	mimecodec version

# mimecodec header parse

Parse the header section of a message and print the decoded fields.

The message is read from file, or from stdin. Encoded-words are decoded, and
folded lines unfolded. Address fields and parameterized fields like
Content-Type are normalized. Malformed fields are skipped, with -loglevel
debug they are logged. With -json, the raw field bodies are printed as well.

	usage: mimecodec header parse [-json] [file]
	  -json
	    	print fields as JSON

# mimecodec header encode

Encode text as header field, with encoded-words where needed.

The field is folded at MaxLineLength from the config file. Text that is not
ASCII is written as encoded-words in the configured charset. With -phrase, the
text is encoded as a phrase, e.g. for a display name in an address, with
quoted-strings for special characters.

	usage: mimecodec header encode [-phrase] name text
	  -phrase
	    	encode as phrase instead of unstructured text

# mimecodec header addresses

Encode an address list field like From or To.

Each address is either a bare address, or a display name followed by an
address in angle brackets, e.g. "Jörg Müller <jm@example.org>". Display names
are encoded as phrase.

	usage: mimecodec header addresses name address ...

# mimecodec header references

Print the message-ids referenced by the References and In-Reply-To fields.

The message is read from file, or from stdin. Message-ids are printed in
canonical form, one per line, without angle brackets.

	usage: mimecodec header references [file]

# mimecodec params parse

Parse the body of a parameterized field, like Content-Type or Content-Disposition.

RFC 2231 continuations and charsets are decoded. The value is printed first,
followed by a line per parameter.

Example:

	mimecodec params parse "text/plain; title*0*=us-ascii'en'This%20is; title*1=' even more'"

	usage: mimecodec params parse body

# mimecodec params encode

Encode a parameterized field, like Content-Type or Content-Disposition.

Parameter values that are too long for a line, or that are not ASCII, are
split into RFC 2231 segments, with the smallest encoded size.

	usage: mimecodec params encode [-field name] [-extended] value [name=value ...]
	  -extended
	    	use RFC 2231 encoding with charset for all parameters
	  -field string
	    	header field name (default "Content-Type")

# mimecodec tokens

Print the tokens in a structured field body.

Each token is printed with its kind, offset and length, its raw bytes, and its
decoded form for values, quoted-strings and encoded-words.

	usage: mimecodec tokens [-class atom|token|attr] [-dot] text
	  -class string
	    	characters of values: atom (RFC 5322), token (RFC 2045) or attr (RFC 2231 attribute) (default "atom")
	  -dot
	    	join values with single dots, as for dot-atom

# mimecodec messageid

Print the canonical form of message-ids.

A message-id that is not of the form local@domain is printed as is, marked as
raw. With -pedantic, trailing text after the message-id is an error.

	usage: mimecodec messageid message-id ...

# mimecodec multipart split

Split a multipart message into its parts.

The message is read from file, or from stdin. Without -boundary, the header
section is read first, and the boundary taken from its Content-Type field. With
-boundary, the input starts with the multipart body.

Each part is written to dir as part-N.eml, with its header. Parts of nested
multiparts are not split.

	usage: mimecodec multipart split [-boundary boundary] dir [file]
	  -boundary string
	    	boundary, if input is only the multipart body

# mimecodec multipart join

Write a multipart message with files as parts.

Each file is a part with its header section, e.g. as written by "multipart
split". A file without header fields must start with an empty line. The
message with MIME-Version and Content-Type fields is written to stdout.

	usage: mimecodec multipart join [-subtype mixed] [-boundary boundary] file ...
	  -boundary string
	    	boundary, a random boundary is generated if empty
	  -subtype string
	    	multipart subtype, e.g. mixed or alternative (default "mixed")

# mimecodec corpus add

Add the header sections of messages to the corpus.

The fields are decoded and stored with the raw header section. Use "corpus
check" after changing the decoder, to find samples that now decode
differently. Header sections already in the corpus are skipped.

	usage: mimecodec corpus add file ...

# mimecodec corpus check

Decode all samples in the corpus again, and print differences.

Exits with status 1 if a sample decodes differently than when it was added.

	usage: mimecodec corpus check

# mimecodec corpus list

List the samples in the corpus.

	usage: mimecodec corpus list

# mimecodec corpus print

Print the raw header section of a sample in the corpus.

	usage: mimecodec corpus print id

# mimecodec config test

Parses and validates the configuration file.

If valid, the command exits with status 0. If not valid, all errors encountered
are printed.

	usage: mimecodec config test

# mimecodec config describe

Prints an annotated empty configuration for use as mimecodec.conf.

All fields are optional.

	usage: mimecodec config describe >mimecodec.conf

# mimecodec metrics

Prints the metrics of this process in Prometheus text format.

Mostly useful to see which metrics exist. Set MetricsOutput in the config file
to write metrics after each command.

	usage: mimecodec metrics

# mimecodec help

Prints help about matching commands.

If multiple commands match, they are listed along with the first line of their help text.
If a single command matches, its usage and full help text is printed.

	usage: mimecodec help [command ...]

# mimecodec version

Prints this mimecodec version.

	usage: mimecodec version
*/
package main

// NOTE: DO NOT EDIT, this file is generated by gendoc.sh.
