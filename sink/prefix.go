// Package sink provides copy targets for monitored sources.
package sink

import (
	"bytes"
	"io"
)

// Prefix writes to an underlying writer, starting every line with a fixed
// prefix. It is meant for interleaving several sources on one stream.
type Prefix struct {
	w         io.Writer
	prefix    []byte
	midLine   bool
	lineCache bytes.Buffer
}

func NewPrefix(w io.Writer, prefix string) *Prefix {
	return &Prefix{w: w, prefix: []byte(prefix)}
}

func (p *Prefix) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.lineCache.Reset()
	rest := b
	for len(rest) > 0 {
		if !p.midLine {
			p.lineCache.Write(p.prefix)
			p.midLine = true
		}
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			p.lineCache.Write(rest)
			break
		}
		p.lineCache.Write(rest[:i+1])
		rest = rest[i+1:]
		p.midLine = false
	}
	if _, err := p.w.Write(p.lineCache.Bytes()); err != nil {
		return 0, err
	}
	return len(b), nil
}
