package buff

import (
	"io"
)

// MaxHeaders is the number of header slots a decoder owns. A request with
// more header lines is rejected.
const MaxHeaders = 16

const httpVersionPrefix = "HTTP/1."

// Decoder turns the unread region of a ConnBuffer into a RawRequest. It
// owns the header slots and the view it hands out, so one decoder serves
// one connection and every call reuses the same storage.
type Decoder struct {
	slots          [MaxHeaders]Header
	req            RawRequest
	maxHeaderBytes int
	readChunk      int
	policy         LengthPolicy
}

func NewDecoder(maxHeaderBytes int, policy LengthPolicy) *Decoder {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = defaultMaxHeaderBytes
	}
	return &Decoder{maxHeaderBytes: maxHeaderBytes, readChunk: defaultReadChunk, policy: policy}
}

// SetReadChunk sets the read size used by body readers of decoded requests.
func (d *Decoder) SetReadChunk(n int) {
	if n > 0 {
		d.readChunk = n
	}
}

// Decode parses one request line and header block from b.
//
// On success the frame is consumed from b, b becomes held by the returned
// view and the frame length is reported. ErrIncomplete means more bytes are
// needed; any other error is an *Error of KindMalformed. In both failure
// cases b is left untouched.
func (d *Decoder) Decode(b *ConnBuffer, sock io.Reader) (*RawRequest, int, error) {
	if b.isHeld() {
		return nil, 0, ErrBufferHeld
	}
	buf := b.Unread()
	n, err := d.parse(buf)
	if err == ErrIncomplete {
		if len(buf) > d.maxHeaderBytes {
			return nil, 0, malformed(ErrHeaderTooLarge, "")
		}
		return nil, 0, err
	}
	if err != nil {
		return nil, 0, err
	}
	if n > d.maxHeaderBytes {
		return nil, 0, malformed(ErrHeaderTooLarge, "")
	}

	b.Advance(n)
	b.hold()
	d.req.buf = b
	d.req.sock = sock
	d.req.policy = d.policy
	d.req.chunk = d.readChunk
	return &d.req, n, nil
}

// parse fills d.req and d.slots from buf. It never looks past the data it
// has, so a valid prefix of a request is always ErrIncomplete.
func (d *Decoder) parse(buf []byte) (int, error) {
	pos := 0

	start := pos
	for pos < len(buf) && isToken(buf[pos]) {
		pos++
	}
	if pos == len(buf) {
		return 0, ErrIncomplete
	}
	if pos == start || buf[pos] != ' ' {
		return 0, malformed(ErrInvalidMethod, "")
	}
	method := buf[start:pos:pos]
	pos++

	start = pos
	for pos < len(buf) && isVChar(buf[pos]) {
		pos++
	}
	if pos == len(buf) {
		return 0, ErrIncomplete
	}
	if pos == start || buf[pos] != ' ' {
		return 0, malformed(ErrInvalidPath, "")
	}
	path := buf[start:pos:pos]
	pos++

	for i := 0; i < len(httpVersionPrefix); i++ {
		if pos+i >= len(buf) {
			return 0, ErrIncomplete
		}
		if buf[pos+i] != httpVersionPrefix[i] {
			return 0, malformed(ErrInvalidVersion, "")
		}
	}
	pos += len(httpVersionPrefix)
	if pos >= len(buf) {
		return 0, ErrIncomplete
	}
	var minor uint8
	switch buf[pos] {
	case '0':
		minor = 0
	case '1':
		minor = 1
	default:
		return 0, malformed(ErrInvalidVersion, "")
	}
	pos++

	pos, err := expectCRLF(buf, pos)
	if err != nil {
		return 0, err
	}

	count := 0
	for {
		if pos >= len(buf) {
			return 0, ErrIncomplete
		}
		if buf[pos] == '\r' {
			pos, err = expectCRLF(buf, pos)
			if err != nil {
				return 0, err
			}
			break
		}
		if count == MaxHeaders {
			return 0, malformed(ErrTooManyHeaders, "")
		}

		start = pos
		for pos < len(buf) && isToken(buf[pos]) {
			pos++
		}
		if pos == len(buf) {
			return 0, ErrIncomplete
		}
		if pos == start || buf[pos] != ':' {
			return 0, malformed(ErrInvalidHeaderName, "")
		}
		name := buf[start:pos:pos]
		pos++

		for pos < len(buf) && isSpace(buf[pos]) {
			pos++
		}
		start = pos
		for pos < len(buf) && isValueByte(buf[pos]) {
			pos++
		}
		if pos == len(buf) {
			return 0, ErrIncomplete
		}
		if buf[pos] != '\r' {
			return 0, malformed(ErrInvalidHeaderValue, "")
		}
		end := pos
		for end > start && isSpace(buf[end-1]) {
			end--
		}
		pos, err = expectCRLF(buf, pos)
		if err != nil {
			return 0, err
		}

		d.slots[count] = Header{Name: name, Value: buf[start:end:end]}
		count++
	}

	d.req = RawRequest{
		method:  method,
		path:    path,
		minor:   minor,
		headers: d.slots[:count:count],
	}
	return pos, nil
}

func expectCRLF(buf []byte, pos int) (int, error) {
	if pos >= len(buf) {
		return 0, ErrIncomplete
	}
	if buf[pos] != '\r' {
		return 0, malformed(ErrInvalidNewline, "")
	}
	pos++
	if pos >= len(buf) {
		return 0, ErrIncomplete
	}
	if buf[pos] != '\n' {
		return 0, malformed(ErrInvalidNewline, "")
	}
	return pos + 1, nil
}

var tokenTable = func() (t [256]bool) {
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
		t[c-'a'+'A'] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()

func isToken(c byte) bool { return tokenTable[c] }

func isVChar(c byte) bool { return c > 0x20 && c < 0x7f }

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// Header values may carry obs-text, so only control bytes are rejected.
func isValueByte(c byte) bool { return c == '\t' || (c >= 0x20 && c != 0x7f) }
