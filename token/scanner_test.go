package token

import (
	"reflect"
	"testing"
)

func TestApostropheNormalization(t *testing.T) {
	got := Split("Don't Stop-Believin'!!", Config{Apostrophe: true})
	want := []string{"don't", "stop", "believin'"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestApostropheAsSeparator(t *testing.T) {
	got := Split("Don't Stop", Config{})
	want := []string{"don", "t", "stop"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestMinLengthFilter(t *testing.T) {
	got := Split("a big cat on the hill", Config{MinLen: 3})
	want := []string{"big", "cat", "the", "hill"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestDigitsAndCaseFolding(t *testing.T) {
	got := Split("Route66 AND route66!", Config{})
	want := []string{"route66", "and", "route66"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
}

func TestEmptyAndSeparatorOnly(t *testing.T) {
	if got := Split("", Config{}); got != nil {
		t.Fatalf("Split(\"\") = %v, want nil", got)
	}
	if got := Split("... -- !!", Config{}); got != nil {
		t.Fatalf("separator-only Split = %v, want nil", got)
	}
}

func TestScannerIsLazy(t *testing.T) {
	s := NewScanner("one two three", Config{})
	if !s.Scan() || s.Token() != "one" {
		t.Fatalf("first token = %q", s.Token())
	}
	if !s.Scan() || s.Token() != "two" {
		t.Fatalf("second token = %q", s.Token())
	}
	if !s.Scan() || s.Token() != "three" {
		t.Fatalf("third token = %q", s.Token())
	}
	if s.Scan() {
		t.Fatal("Scan returned true past end of text")
	}
}
