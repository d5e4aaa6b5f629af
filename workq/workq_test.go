package workq

import (
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestQueue(t *testing.T) {
	check := func(procs, size, count int) {
		t.Helper()
		var got []string
		prepare := func(i int) (string, error) {
			// Later items are quicker, results must still be processed in order.
			time.Sleep(time.Duration(count-i) * 100 * time.Microsecond)
			return strconv.Itoa(i), nil
		}
		process := func(i int, s string) error {
			got = append(got, s)
			return nil
		}
		q := New(procs, size, prepare, process)
		defer q.Stop()
		var exp []string
		for i := range count {
			if err := q.Add(i); err != nil {
				t.Fatalf("add: %v", err)
			}
			exp = append(exp, strconv.Itoa(i))
		}
		if err := q.Finish(); err != nil {
			t.Fatalf("finish: %v", err)
		}
		if !reflect.DeepEqual(got, exp) {
			t.Fatalf("procs %d, size %d: got %v, expected %v", procs, size, got, exp)
		}
	}

	check(1, 1, 10)
	check(4, 8, 50)
	check(8, 2, 20)
	check(2, 0, 5)
	check(3, 6, 0)
}

func TestQueueError(t *testing.T) {
	errPrepare := errors.New("prepare")
	errProcess := errors.New("process")

	var processed []int
	q := New(2, 2, func(i int) (int, error) {
		if i == 3 {
			return 0, errPrepare
		}
		return i, nil
	}, func(i, o int) error {
		processed = append(processed, o)
		return nil
	})
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = q.Add(i)
	}
	if err == nil {
		err = q.Finish()
	}
	q.Stop()
	if !errors.Is(err, errPrepare) {
		t.Fatalf("got %v, expected prepare error", err)
	}
	if !reflect.DeepEqual(processed, []int{0, 1, 2}) {
		t.Fatalf("processed %v, expected items before error", processed)
	}

	q = New(1, 4, func(i int) (int, error) { return i, nil }, func(i, o int) error {
		if i == 1 {
			return errProcess
		}
		return nil
	})
	defer q.Stop()
	for i := range 2 {
		if err := q.Add(i); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := q.Finish(); !errors.Is(err, errProcess) {
		t.Fatalf("got %v, expected process error", err)
	}
}
