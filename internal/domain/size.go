package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes is the catalog order of all size variants.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

func ParseSize(s string) (Size, error) {
	v := Size(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Sizes {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown size %q", s)
}

func (s Size) Valid() bool {
	_, err := ParseSize(string(s))
	return err == nil
}

func (s *Size) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
