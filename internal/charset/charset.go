// Package charset detects and strictly decodes legacy text encodings.
//
// Detection probes a bounded prefix of the input against a priority list of
// candidates and picks the first one that decodes without a single invalid
// sequence. When nothing matches, Latin-1 is returned with Fallback set:
// it maps every byte, so the text is readable but likely mojibake.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"ragchat/internal/domain"
)

// DefaultProbeSize is the number of leading bytes inspected by Resolve.
const DefaultProbeSize = 1024

// Encoding names, in default priority order.
const (
	UTF8    = "utf-8"
	GB2312  = "gb2312"
	GBK     = "gbk"
	GB18030 = "gb18030"
	UTF16   = "utf-16"
	Big5    = "big5"
	Latin1  = "latin-1"
)

// Candidate is one encoding the resolver may try.
type Candidate struct {
	Name     string
	Encoding encoding.Encoding
	// valid is an optional byte-level check run before decoding.
	valid func(p []byte, atEOF bool) bool
}

var registry = map[string]Candidate{
	UTF8:    {Name: UTF8, Encoding: unicode.UTF8, valid: validUTF8},
	GB2312:  {Name: GB2312, Encoding: simplifiedchinese.GBK, valid: validEUCCN},
	GBK:     {Name: GBK, Encoding: simplifiedchinese.GBK},
	GB18030: {Name: GB18030, Encoding: simplifiedchinese.GB18030},
	UTF16:   {Name: UTF16, Encoding: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	Big5:    {Name: Big5, Encoding: traditionalchinese.Big5},
	Latin1:  {Name: Latin1, Encoding: charmap.ISO8859_1},
}

// DefaultPriority is the probe order used when none is configured.
// Latin-1 is deliberately absent: it is the fallback, not a candidate.
var DefaultPriority = []string{UTF8, GB2312, GBK, GB18030, UTF16, Big5}

// Lookup returns the candidate registered under name (case-insensitive).
func Lookup(name string) (Candidate, bool) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Result is the outcome of a detection.
type Result struct {
	Name     string
	Encoding encoding.Encoding
	// Fallback is true when no candidate matched and Latin-1 was chosen.
	// Callers should treat the decoded text as degraded.
	Fallback bool
}

// Resolver detects the encoding of a byte source.
type Resolver struct {
	candidates []Candidate
	probeSize  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProbeSize sets how many leading bytes are inspected.
func WithProbeSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.probeSize = n
		}
	}
}

// WithPriority replaces the candidate order. Unknown names are ignored.
func WithPriority(names ...string) Option {
	return func(r *Resolver) {
		var cs []Candidate
		for _, n := range names {
			if c, ok := Lookup(n); ok {
				cs = append(cs, c)
			}
		}
		if len(cs) > 0 {
			r.candidates = cs
		}
	}
}

// NewResolver creates a Resolver with DefaultPriority and DefaultProbeSize.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{probeSize: DefaultProbeSize}
	for _, n := range DefaultPriority {
		r.candidates = append(r.candidates, registry[n])
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Candidates returns the names the resolver probes, in priority order.
func (r *Resolver) Candidates() []string {
	out := make([]string, len(r.candidates))
	for i, c := range r.candidates {
		out[i] = c.Name
	}
	return out
}

// Resolve reads at most the probe size from rd and detects its encoding.
// The only error is a read failure; an undetectable source yields the
// Latin-1 fallback.
func (r *Resolver) Resolve(rd io.Reader) (Result, error) {
	buf := make([]byte, r.probeSize+1)
	n, err := io.ReadFull(rd, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Result{}, fmt.Errorf("read probe: %w", err)
	}
	// One extra byte tells us whether the probe saw the whole source.
	atEOF := n <= r.probeSize
	if !atEOF {
		n = r.probeSize
	}
	return r.detect(buf[:n], atEOF), nil
}

// ResolveBytes detects the encoding of data using only its probe prefix.
func (r *Resolver) ResolveBytes(data []byte) Result {
	if len(data) > r.probeSize {
		return r.detect(data[:r.probeSize], false)
	}
	return r.detect(data, true)
}

func (r *Resolver) detect(prefix []byte, atEOF bool) Result {
	for _, c := range r.candidates {
		if _, err := decode(c, prefix, atEOF); err == nil {
			return Result{Name: c.Name, Encoding: c.Encoding}
		}
	}
	l := registry[Latin1]
	return Result{Name: l.Name, Encoding: l.Encoding, Fallback: true}
}

// Decode strictly decodes the whole of data with the named encoding.
// Any invalid sequence yields an error wrapping domain.ErrDecode.
func Decode(data []byte, name string) (string, error) {
	c, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: unknown encoding %q", domain.ErrDecode, name)
	}
	out, err := decode(c, data, true)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decode runs the candidate decoder over p. With atEOF false, a truncated
// trailing sequence is tolerated since the probe may cut a character.
func decode(c Candidate, p []byte, atEOF bool) ([]byte, error) {
	if c.valid != nil && !c.valid(p, atEOF) {
		return nil, fmt.Errorf("%w: invalid %s byte sequence", domain.ErrDecode, c.Name)
	}
	if c.Name == UTF8 {
		return p, nil
	}
	dec := c.Encoding.NewDecoder()
	dst := make([]byte, 4*len(p)+16)
	nDst, _, err := dec.Transform(dst, p, atEOF)
	if err != nil && !(errors.Is(err, transform.ErrShortSrc) && !atEOF) {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecode, c.Name, err)
	}
	out := dst[:nDst]
	// x/text decoders substitute U+FFFD for invalid input instead of failing.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return nil, fmt.Errorf("%w: invalid %s byte sequence", domain.ErrDecode, c.Name)
	}
	return out, nil
}

func validUTF8(p []byte, atEOF bool) bool {
	if utf8.Valid(p) {
		return true
	}
	if atEOF {
		return false
	}
	// Drop an incomplete rune cut by the probe boundary.
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		if utf8.RuneStart(p[len(p)-i]) {
			if utf8.FullRune(p[len(p)-i:]) {
				return false
			}
			return utf8.Valid(p[:len(p)-i])
		}
	}
	return false
}

// validEUCCN accepts only the GB2312 (EUC-CN) double-byte area:
// lead 0xA1-0xF7, trail 0xA1-0xFE.
func validEUCCN(p []byte, atEOF bool) bool {
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c < 0x80 {
			continue
		}
		if c < 0xA1 || c > 0xF7 {
			return false
		}
		if i+1 >= len(p) {
			return !atEOF
		}
		t := p[i+1]
		if t < 0xA1 || t > 0xFE {
			return false
		}
		i++
	}
	return true
}
