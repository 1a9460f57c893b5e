package sailor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"regexp/syntax"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readChunkSize is the buffer size used when pulling from an io.Reader.
const readChunkSize = 32 * 1024

type delimiterKind int

const (
	literalDelimiter delimiterKind = iota + 1
	patternDelimiter
	bytesDelimiter
)

// Delimiter separates records in a stream. Literal and Pattern delimiters
// produce text records; Bytes delimiters produce binary records.
type Delimiter struct {
	kind    delimiterKind
	literal string
	pattern *regexp.Regexp
	bytes   []byte
}

// Literal splits text on an exact substring.
func Literal(s string) Delimiter {
	return Delimiter{kind: literalDelimiter, literal: s}
}

// Pattern splits text on every match of re. Case folding in re is kept, but
// multi-line anchors are rewritten to match only at the edges of the buffered
// text, so ^ and $ cannot match at arbitrary line breaks between chunks.
func Pattern(re *regexp.Regexp) Delimiter {
	return Delimiter{kind: patternDelimiter, pattern: normalizePattern(re)}
}

// Bytes splits binary data on an exact byte sequence.
func Bytes(b []byte) Delimiter {
	return Delimiter{kind: bytesDelimiter, bytes: bytes.Clone(b)}
}

// Binary reports whether the delimiter yields binary records.
func (d Delimiter) Binary() bool {
	return d.kind == bytesDelimiter
}

func (d Delimiter) validate() error {
	switch d.kind {
	case literalDelimiter:
		if d.literal == "" {
			return ErrEmptyDelimiter
		}
	case patternDelimiter:
		if d.pattern == nil {
			return errors.New("sailor: nil delimiter pattern")
		}
	case bytesDelimiter:
		if len(d.bytes) == 0 {
			return ErrEmptyDelimiter
		}
	default:
		return errors.New("sailor: zero Delimiter")
	}
	return nil
}

// normalizePattern rewrites (?m) line anchors into text anchors.
func normalizePattern(re *regexp.Regexp) *regexp.Regexp {
	if re == nil {
		return nil
	}
	tree, err := syntax.Parse(re.String(), syntax.Perl)
	if err != nil {
		return re
	}
	if !rewriteLineAnchors(tree) {
		return re
	}
	normalized, err := regexp.Compile(tree.String())
	if err != nil {
		return re
	}
	return normalized
}

func rewriteLineAnchors(re *syntax.Regexp) bool {
	changed := false
	switch re.Op {
	case syntax.OpBeginLine:
		re.Op = syntax.OpBeginText
		changed = true
	case syntax.OpEndLine:
		re.Op = syntax.OpEndText
		re.Flags |= syntax.WasDollar
		changed = true
	}
	for _, sub := range re.Sub {
		if rewriteLineAnchors(sub) {
			changed = true
		}
	}
	return changed
}

// Record is one delimited unit of a stream.
type Record struct {
	text   string
	data   []byte
	binary bool
}

// Binary reports whether the record came from a Bytes delimiter.
func (r Record) Binary() bool { return r.binary }

// String returns the record as text.
func (r Record) String() string {
	if r.binary {
		return string(r.data)
	}
	return r.text
}

// Bytes returns the record's raw bytes.
func (r Record) Bytes() []byte {
	if r.binary {
		return r.data
	}
	return []byte(r.text)
}

// SplitOption configures Split.
type SplitOption func(*splitConfig)

type splitConfig struct {
	decoder *encoding.Decoder
}

// WithDecoder sets the decoder used for text delimiters. The decoder keeps
// partial multi-byte sequences between chunks. Defaults to UTF-8 with invalid
// sequences replaced by U+FFFD.
func WithDecoder(dec *encoding.Decoder) SplitOption {
	return func(c *splitConfig) {
		c.decoder = dec
	}
}

// Split consumes source once and yields the records separated by delim. The
// final record is whatever follows the last delimiter, so a stream ending in a
// delimiter yields a trailing empty record.
//
// Supported sources are io.Reader (pulled in the background; closed on release
// when it is also an io.Closer), <-chan []byte and chan []byte (pushed by the
// sender; a closed channel ends the stream), and iter.Seq2[[]byte, error].
// Any other source yields ErrUnsupportedSource.
//
// Split owns the source: it is released exactly once, when the sequence ends,
// when the consumer stops early, on a source error, or when ctx is cancelled.
// Cancellation yields an error matching ErrStreamCancelled, and the source is
// released before that error reaches the consumer.
func Split(ctx context.Context, source any, delim Delimiter, opts ...SplitOption) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		cfg := splitConfig{}
		for _, opt := range opts {
			opt(&cfg)
		}

		src, err := newChunkSource(source)
		if err != nil {
			yield(Record{}, err)
			return
		}
		defer src.release()

		fail := func(err error) {
			src.release()
			yield(Record{}, err)
		}

		if err := delim.validate(); err != nil {
			fail(err)
			return
		}

		var s splitter
		if delim.Binary() {
			s = &byteSplitter{delim: delim.bytes}
		} else {
			dec := cfg.decoder
			if dec == nil {
				dec = unicode.UTF8.NewDecoder()
			}
			s = &textSplitter{dec: newStreamDecoder(dec), literal: delim.literal, pattern: delim.pattern}
		}

		for {
			if ctx.Err() != nil {
				fail(streamCancelled(ctx))
				return
			}
			chunk, err := src.next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					err = streamCancelled(ctx)
				}
				fail(err)
				return
			}
			records, err := s.push(chunk)
			if err != nil {
				fail(err)
				return
			}
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
		}

		last, err := s.finish()
		if err != nil {
			fail(err)
			return
		}
		yield(last, nil)
	}
}

// SplitText is Split for text delimiters, yielding strings.
func SplitText(ctx context.Context, source any, delim Delimiter, opts ...SplitOption) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for rec, err := range Split(ctx, source, delim, opts...) {
			if !yield(rec.String(), err) || err != nil {
				return
			}
		}
	}
}

// SplitBytes is Split on a byte delimiter, yielding raw records.
func SplitBytes(ctx context.Context, source any, delim []byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for rec, err := range Split(ctx, source, Bytes(delim)) {
			if !yield(rec.Bytes(), err) || err != nil {
				return
			}
		}
	}
}

func streamCancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrStreamCancelled, context.Cause(ctx))
}

type splitter interface {
	push(chunk []byte) ([]Record, error)
	finish() (Record, error)
}

// textSplitter holds the decoded text carried over between chunks.
type textSplitter struct {
	dec     *streamDecoder
	carry   string
	literal string
	pattern *regexp.Regexp
}

func (s *textSplitter) push(chunk []byte) ([]Record, error) {
	text, err := s.dec.decode(chunk, false)
	if err != nil {
		return nil, fmt.Errorf("decoding stream: %w", err)
	}
	s.carry += text
	if s.pattern != nil {
		return s.scanPattern(), nil
	}
	return s.scanLiteral(), nil
}

func (s *textSplitter) finish() (Record, error) {
	text, err := s.dec.decode(nil, true)
	if err != nil {
		return Record{}, fmt.Errorf("decoding stream: %w", err)
	}
	s.carry += text
	return Record{text: s.carry}, nil
}

func (s *textSplitter) scanLiteral() []Record {
	var out []Record
	for {
		idx := strings.Index(s.carry, s.literal)
		if idx < 0 {
			return out
		}
		out = append(out, Record{text: s.carry[:idx]})
		s.carry = s.carry[idx+len(s.literal):]
	}
}

// scanPattern emits every record terminated by a match. Matches are found in
// one pass over the whole carry so anchors and word boundaries see the text
// before each match. An empty match never consumes text.
func (s *textSplitter) scanPattern() []Record {
	var out []Record
	start := 0
	for _, loc := range s.pattern.FindAllStringIndex(s.carry, -1) {
		matchStart, matchEnd := loc[0], loc[1]
		if matchStart == matchEnd {
			if matchStart >= len(s.carry) {
				break
			}
			if matchStart > start {
				out = append(out, Record{text: s.carry[start:matchStart]})
				start = matchStart
			}
			continue
		}
		out = append(out, Record{text: s.carry[start:matchStart]})
		start = matchEnd
	}
	s.carry = s.carry[start:]
	return out
}

// byteSplitter holds the raw bytes carried over between chunks.
type byteSplitter struct {
	delim []byte
	carry []byte
}

func (s *byteSplitter) push(chunk []byte) ([]Record, error) {
	s.carry = append(s.carry, chunk...)
	var out []Record
	for {
		idx := bytes.Index(s.carry, s.delim)
		if idx < 0 {
			return out, nil
		}
		out = append(out, Record{data: s.carry[:idx:idx], binary: true})
		s.carry = s.carry[idx+len(s.delim):]
	}
}

func (s *byteSplitter) finish() (Record, error) {
	rest := s.carry
	if rest == nil {
		rest = []byte{}
	}
	return Record{data: rest, binary: true}, nil
}

// streamDecoder decodes chunks incrementally, holding back an incomplete
// trailing sequence until the next chunk or the final flush.
type streamDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

func newStreamDecoder(t transform.Transformer) *streamDecoder {
	return &streamDecoder{t: t, buf: make([]byte, readChunkSize)}
}

func (d *streamDecoder) decode(chunk []byte, final bool) (string, error) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf, src, final)
		out.Write(d.buf[:nDst])
		src = src[nSrc:]
		switch {
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.buf = make([]byte, 2*len(d.buf))
			}
		case errors.Is(err, transform.ErrShortSrc) && !final:
			d.pending = bytes.Clone(src)
			return out.String(), nil
		case err != nil:
			return out.String(), err
		default:
			if final {
				d.t.Reset()
			}
			return out.String(), nil
		}
	}
}

// chunkSource is the single shape every supported source is adapted to.
type chunkSource struct {
	// next returns the next chunk, or io.EOF once the source is exhausted.
	next func(ctx context.Context) ([]byte, error)
	// release frees the underlying source. Safe to call more than once.
	release func()
}

func newChunkSource(source any) (*chunkSource, error) {
	switch src := source.(type) {
	case nil:
		return nil, fmt.Errorf("%w: <nil>", ErrUnsupportedSource)
	case <-chan []byte:
		return channelSource(src), nil
	case chan []byte:
		return channelSource(src), nil
	case iter.Seq2[[]byte, error]:
		return seqSource(src), nil
	case func(func([]byte, error) bool):
		return seqSource(src), nil
	case io.Reader:
		return readerSource(src), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, source)
	}
}

func channelSource(ch <-chan []byte) *chunkSource {
	return &chunkSource{
		next: func(ctx context.Context) ([]byte, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case chunk, ok := <-ch:
				if !ok {
					return nil, io.EOF
				}
				return chunk, nil
			}
		},
		release: func() {},
	}
}

// seqSource pulls from an iterator. The iterator runs on the consumer's
// goroutine, so cancellation is observed between chunks.
func seqSource(seq iter.Seq2[[]byte, error]) *chunkSource {
	next, stop := iter.Pull2(seq)
	var once sync.Once
	return &chunkSource{
		next: func(ctx context.Context) ([]byte, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			chunk, err, ok := next()
			if !ok {
				return nil, io.EOF
			}
			return chunk, err
		},
		release: func() { once.Do(stop) },
	}
}

type readResult struct {
	data []byte
	err  error
}

// readerSource reads r on a background goroutine so that a blocked Read can be
// raced against cancellation. Releasing closes r when it is an io.Closer,
// which unblocks the pending Read.
func readerSource(r io.Reader) *chunkSource {
	results := make(chan readResult)
	done := make(chan struct{})
	var startOnce, releaseOnce sync.Once

	pump := func() {
		defer close(results)
		for {
			buf := make([]byte, readChunkSize)
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case results <- readResult{data: buf[:n]}:
				case <-done:
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case results <- readResult{err: err}:
					case <-done:
					}
				}
				return
			}
		}
	}

	return &chunkSource{
		next: func(ctx context.Context) ([]byte, error) {
			startOnce.Do(func() { go pump() })
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case res, ok := <-results:
				if !ok {
					return nil, io.EOF
				}
				return res.data, res.err
			}
		},
		release: func() {
			releaseOnce.Do(func() {
				close(done)
				if c, ok := r.(io.Closer); ok {
					_ = c.Close()
				}
			})
		},
	}
}
