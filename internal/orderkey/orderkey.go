package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// smallestInteger is the lowest representable integer part; no key can sort
// below it with an empty fraction.
var smallestInteger = "A" + strings.Repeat("0", 26)

var (
	// ErrInvalidRange is returned when lower does not sort strictly before upper.
	ErrInvalidRange = errors.New("orderkey: lower must sort before upper")
	// ErrInvalidKey is returned for malformed keys.
	ErrInvalidKey = errors.New("orderkey: invalid key")
	// ErrExhausted is returned when the integer space runs out at either end.
	ErrExhausted = errors.New("orderkey: key space exhausted")
)

// Default is the key handed out for the first item of an empty list.
const Default = "a0"

// Between returns a key k with lower < k < upper. An empty lower means
// "no lower bound" and an empty upper means "no upper bound".
func Between(lower, upper string) (string, error) {
	if lower != "" {
		if err := Validate(lower); err != nil {
			return "", err
		}
	}
	if upper != "" {
		if err := Validate(upper); err != nil {
			return "", err
		}
	}
	if lower != "" && upper != "" && lower >= upper {
		return "", fmt.Errorf("%w: %q >= %q", ErrInvalidRange, lower, upper)
	}

	switch {
	case lower == "" && upper == "":
		return Default, nil
	case lower == "":
		ib, _ := integerPart(upper)
		fb := upper[len(ib):]
		if ib == smallestInteger {
			m, err := midpoint("", fb, true)
			if err != nil {
				return "", err
			}
			return ib + m, nil
		}
		if ib < upper {
			return ib, nil
		}
		dec, ok := decrementInteger(ib)
		if !ok {
			return "", ErrExhausted
		}
		return dec, nil
	case upper == "":
		ia, _ := integerPart(lower)
		fa := lower[len(ia):]
		inc, ok := incrementInteger(ia)
		if ok {
			return inc, nil
		}
		m, err := midpoint(fa, "", false)
		if err != nil {
			return "", err
		}
		return ia + m, nil
	}

	ia, _ := integerPart(lower)
	fa := lower[len(ia):]
	ib, _ := integerPart(upper)
	fb := upper[len(ib):]
	if ia == ib {
		m, err := midpoint(fa, fb, true)
		if err != nil {
			return "", err
		}
		return ia + m, nil
	}
	inc, ok := incrementInteger(ia)
	if !ok {
		return "", ErrExhausted
	}
	if inc < upper {
		return inc, nil
	}
	m, err := midpoint(fa, "", false)
	if err != nil {
		return "", err
	}
	return ia + m, nil
}

// NKeysBetween returns n ascending keys strictly between lower and upper
// (either may be empty). Keys are spread so that none of them is needlessly
// long.
func NKeysBetween(lower, upper string, n int) ([]string, error) {
	switch {
	case n <= 0:
		return nil, nil
	case n == 1:
		k, err := Between(lower, upper)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}

	if upper == "" {
		out := make([]string, 0, n)
		c := lower
		for i := 0; i < n; i++ {
			k, err := Between(c, upper)
			if err != nil {
				return nil, err
			}
			out = append(out, k)
			c = k
		}
		return out, nil
	}
	if lower == "" {
		out := make([]string, n)
		c := upper
		for i := n - 1; i >= 0; i-- {
			k, err := Between(lower, c)
			if err != nil {
				return nil, err
			}
			out[i] = k
			c = k
		}
		return out, nil
	}

	mid := n / 2
	c, err := Between(lower, upper)
	if err != nil {
		return nil, err
	}
	left, err := NKeysBetween(lower, c, mid)
	if err != nil {
		return nil, err
	}
	right, err := NKeysBetween(c, upper, n-mid-1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	out = append(out, left...)
	out = append(out, c)
	return append(out, right...), nil
}

// Validate reports whether key is a well-formed order key.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ip, err := integerPart(key)
	if err != nil {
		return err
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return fmt.Errorf("%w: %q has non base-62 byte", ErrInvalidKey, key)
		}
	}
	if f := key[len(ip):]; strings.HasSuffix(f, "0") {
		return fmt.Errorf("%w: %q has trailing zero", ErrInvalidKey, key)
	}
	return nil
}

func integerLength(head byte) (int, bool) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, true
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, true
	}
	return 0, false
}

func integerPart(key string) (string, error) {
	n, ok := integerLength(key[0])
	if !ok {
		return "", fmt.Errorf("%w: %q has bad head", ErrInvalidKey, key)
	}
	if n > len(key) {
		return "", fmt.Errorf("%w: %q is shorter than its head implies", ErrInvalidKey, key)
	}
	return key[:n], nil
}

// midpoint returns a fraction strictly between a and b. hasUpper=false means
// b is unbounded.
func midpoint(a, b string, hasUpper bool) (string, error) {
	if hasUpper && a >= b {
		return "", fmt.Errorf("%w: fraction %q >= %q", ErrInvalidRange, a, b)
	}
	if strings.HasSuffix(a, "0") || (hasUpper && strings.HasSuffix(b, "0")) {
		return "", fmt.Errorf("%w: fraction has trailing zero", ErrInvalidKey)
	}
	if hasUpper {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			m, err := midpoint(tail(a, n), b[n:], true)
			if err != nil {
				return "", err
			}
			return b[:n] + m, nil
		}
	}

	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := len(digits)
	if hasUpper {
		db = strings.IndexByte(digits, b[0])
	}
	if db-da > 1 {
		return string(digits[(da+db+1)/2]), nil
	}
	if hasUpper && len(b) > 1 {
		return b[:1], nil
	}
	m, err := midpoint(tail(a, 1), "", false)
	if err != nil {
		return "", err
	}
	return string(digits[da]) + m, nil
}

// digitAt returns s[i], treating positions past the end as '0'.
func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return '0'
}

func tail(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	return s[n:]
}

func incrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = '0'
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a0", true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, '0')
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d == -1 {
			digs[i] = digits[len(digits)-1]
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(digits[len(digits)-1]), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, digits[len(digits)-1])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}
