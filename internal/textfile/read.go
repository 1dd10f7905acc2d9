// Package textfile reads configuration and description files written by
// humans or by other tools. It strips Byte Order Marks (BOM) and converts
// UTF-16 input to UTF-8.
package textfile

import (
	"bytes"
	"io"
	"os"

	"github.com/restic/kvrecover/internal/errors"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8              = []byte{0xef, 0xbb, 0xbf}
	bomUTF16BigEndian    = []byte{0xfe, 0xff}
	bomUTF16LittleEndian = []byte{0xff, 0xfe}
)

// Decode removes a byte order mark and converts the bytes to UTF-8.
func Decode(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, bomUTF8) {
		return data[len(bomUTF8):], nil
	}

	if !bytes.HasPrefix(data, bomUTF16BigEndian) && !bytes.HasPrefix(data, bomUTF16LittleEndian) {
		return data, nil
	}

	// UseBOM selects the endianness from the mark
	e := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	return e.NewDecoder().Bytes(data)
}

// Stdin is read by Read when the filename is "-".
var Stdin io.Reader = os.Stdin

// Read returns the contents of the file converted to UTF-8. The filename "-"
// reads from Stdin.
func Read(filename string) ([]byte, error) {
	var data []byte
	var err error
	if filename == "-" {
		data, err = io.ReadAll(Stdin)
	} else {
		data, err = os.ReadFile(filename)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return Decode(data)
}
