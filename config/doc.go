/*
Package config holds the configuration file definition for the mimecodec
command.

The configuration file is optional, all fields have defaults. Below is the
"empty" config file, generated from the config definition in the source code,
along with comments explaining the fields.

# sconf

The config file is in "sconf" format. Properties of sconf files:

  - Indentation with tabs only.
  - "#" as first non-whitespace character makes the line a comment. Lines with a
    value cannot also have a comment.
  - Values don't have syntax indicating their type. For example, strings are
    not quoted/escaped and can never span multiple lines.
  - Fields that are optional can be left out completely. But the value of an
    optional field may itself have required fields.

See https://pkg.go.dev/github.com/mjl-/sconf for details.

# mimecodec.conf

	# NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be
	# on their own line, they don't end a line. Do not escape or quote strings.
	# Details: https://pkg.go.dev/github.com/mjl-/sconf.


	# Default log level, one of: error, info, debug, trace. Default: info. (optional)
	LogLevel:

	# Overrides of log level per package (e.g. message, corpus). (optional)
	PackageLogLevels:
		x:

	# Charset for encoded-words and RFC 2231 parameter values when encoding. Must be
	# known in the IANA registry. Default: utf-8. (optional)
	Charset:

	# Language tag for RFC 2231 parameter values, e.g. en. Default: empty. (optional)
	Language:

	# Maximum line length when folding header fields, not including CRLF. Lines can be
	# longer if a single element does not fit. Default: 78. (optional)
	MaxLineLength: 0

	# Maximum number of bytes buffered when scanning for the end of header fields and
	# body parts. Must leave room for a header field of maximum size. Default:
	# 1048576. (optional)
	MaxWindow: 0

	# In pedantic mode, syntax seen in practice that is not allowed by the RFCs
	# results in errors instead of being accepted. (optional)
	Pedantic: false

	# Database file with the corpus of header samples, for regression checks. If
	# relative, it is relative to the directory of the config file. Default:
	# corpus.db. (optional)
	CorpusPath:

	# If set, file to write metrics to in Prometheus text format when a command
	# finishes, e.g. for the textfile collector of the node exporter. Use - for
	# stderr. (optional)
	MetricsOutput:
*/
package config

// NOTE: DO NOT EDIT, this file is generated by ../gendoc.sh.
