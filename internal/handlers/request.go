package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const maxRequestBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON payload: unexpected trailing data")
	}
	return nil
}

// maxAmountLength caps the textual form of a submitted amount before it is parsed.
const maxAmountLength = 32

// money is a decimal amount that decodes from a JSON number or numeric string and encodes as a JSON
// number with two decimals.
type money struct {
	decimal.Decimal
}

func newMoney(d decimal.Decimal) money {
	return money{Decimal: d}
}

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

func (m *money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = money{}
		return nil
	}
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	if len(raw) > maxAmountLength {
		return fmt.Errorf("monetary amount exceeds %d characters", maxAmountLength)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid monetary amount %s", string(data))
	}
	*m = newMoney(d)
	return nil
}

// unitPrice keeps the submitted precision on output.
type unitPrice struct {
	money
}

func (p unitPrice) MarshalJSON() ([]byte, error) {
	if p.Exponent() >= -2 {
		return []byte(p.StringFixed(2)), nil
	}
	return []byte(p.String()), nil
}
