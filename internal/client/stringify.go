package client

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// stringAPI encodes string literals. HTML characters are left unescaped.
var stringAPI = sonic.Config{ValidateString: true}.Froze()

var errInvalidJSON = errors.New("invalid json")

// stringifyBody serializes a response body the way JSON.stringify prints a
// parsed payload: compact, object keys in server order, numbers in their
// shortest form. A body that is not JSON is treated as text and encoded as a
// JSON string literal. Invalid UTF-8 is replaced before parsing.
func stringifyBody(body []byte) ([]byte, error) {
	text := toValidUTF8(string(body))
	if !stringAPI.Valid([]byte(text)) {
		var buf bytes.Buffer
		if err := writeString(&buf, text); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	root, err := sonic.GetFromString(text)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	var buf bytes.Buffer
	if err := writeNode(&buf, root); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, node ast.Node) error {
	switch node.TypeSafe() {
	case ast.V_NULL:
		buf.WriteString("null")
	case ast.V_TRUE:
		buf.WriteString("true")
	case ast.V_FALSE:
		buf.WriteString("false")
	case ast.V_NUMBER:
		f, err := node.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			// Out-of-range numbers parse to Infinity, which stringifies as null.
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(formatNumber(f))
	case ast.V_STRING:
		s, err := node.String()
		if err != nil {
			return fmt.Errorf("read string: %w", err)
		}
		return writeString(buf, s)
	case ast.V_ARRAY:
		it, err := node.Values()
		if err != nil {
			return fmt.Errorf("read array: %w", err)
		}
		buf.WriteByte('[')
		var elem ast.Node
		for i := 0; it.Next(&elem); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case ast.V_OBJECT:
		it, err := node.Properties()
		if err != nil {
			return fmt.Errorf("read object: %w", err)
		}
		buf.WriteByte('{')
		var pair ast.Pair
		for i := 0; it.Next(&pair); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, pair.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeNode(buf, pair.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: node type %d", errInvalidJSON, node.Type())
	}

	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	encoded, err := stringAPI.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	buf.Write(encoded)

	return nil
}

// toValidUTF8 replaces every invalid byte with U+FFFD, as a text decoder
// would. strings.ToValidUTF8 collapses runs into one replacement instead.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		b.WriteRune(r)
	}

	return b.String()
}

// formatNumber follows the JavaScript Number-to-string rules: plain decimals
// for 1e-7 <= |f| < 1e21, exponent form with an explicit sign otherwise.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-7 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.TrimLeft(exp[1:], "0")

	return mantissa + "e" + exp[:1] + digits
}
