package decoder

import (
	"context"
	"io"
	"testing"
)

func TestSourceReadSeekerReadsSequentially(t *testing.T) {
	src := &fakeSource{data: []byte("hello world")}
	rs := &sourceReadSeeker{ctx: context.Background(), src: src}

	buf := make([]byte, 5)
	n, err := rs.Read(buf)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %q, %d, %v", buf[:n], n, err)
	}

	n, err = rs.Read(buf)
	if err != nil || n != 5 || string(buf) != " worl" {
		t.Fatalf("second Read = %q, %d, %v", buf[:n], n, err)
	}
}

func TestSourceReadSeekerReportsEOFAtEnd(t *testing.T) {
	src := &fakeSource{data: []byte("hi")}
	rs := &sourceReadSeeker{ctx: context.Background(), src: src}

	buf := make([]byte, 2)
	if _, err := rs.Read(buf); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if _, err := rs.Read(buf); err != io.EOF {
		t.Errorf("Read past end = %v, want io.EOF", err)
	}
}

func TestSourceReadSeekerSeekWhenceVariants(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789")}
	rs := &sourceReadSeeker{ctx: context.Background(), src: src}

	if pos, err := rs.Seek(3, io.SeekStart); err != nil || pos != 3 {
		t.Fatalf("SeekStart: pos=%d err=%v", pos, err)
	}
	if pos, err := rs.Seek(2, io.SeekCurrent); err != nil || pos != 5 {
		t.Fatalf("SeekCurrent: pos=%d err=%v", pos, err)
	}
	if pos, err := rs.Seek(-1, io.SeekEnd); err != nil || pos != 9 {
		t.Fatalf("SeekEnd: pos=%d err=%v", pos, err)
	}
	if _, err := rs.Seek(-100, io.SeekStart); err == nil {
		t.Error("expected an error seeking before the start of the stream")
	}
}

func TestExtractTagsReturnsNilForNonTaggedStream(t *testing.T) {
	src := &fakeSource{data: buildFixture(2)}
	if tags := extractTags(context.Background(), src); tags != nil {
		t.Errorf("extractTags = %+v, want nil for a synthetic fixture with no real comment header", tags)
	}
}
