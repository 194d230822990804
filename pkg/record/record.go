package record

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Type identifies the kind of genealogical record a change targets.
type Type string

const (
	TypeIndividual Type = "individual"
	TypeFamily     Type = "family"
	TypeSource     Type = "source"
	TypeRepository Type = "repository"
	TypeMedia      Type = "media"
	TypeNote       Type = "note"
	TypeSubmitter  Type = "submitter"
	TypeSubmission Type = "submission"
	TypeHeader     Type = "header"
	TypeGeneric    Type = "record"
)

// tagTypes maps the leading-line tag of an encoded record to its type.
// Unrecognised tags fall back to TypeGeneric, so adding a record type is a
// data change here plus a factory entry in the registry.
var tagTypes = map[string]Type{
	"INDI": TypeIndividual,
	"FAM":  TypeFamily,
	"SOUR": TypeSource,
	"REPO": TypeRepository,
	"OBJE": TypeMedia,
	"NOTE": TypeNote,
	"SUBM": TypeSubmitter,
	"SUBN": TypeSubmission,
	"HEAD": TypeHeader,
}

// leadingLine matches the structural first line of an encoded record:
// level 0, an optional cross-reference, then the record-type tag.
var leadingLine = regexp.MustCompile(`^0 (?:@[^@]+@ )?([A-Za-z0-9_]+)`)

// ErrUnclassifiable reports record text whose leading line does not carry a
// recognisable structure (or no text at all).
var ErrUnclassifiable = errors.New("record text cannot be classified")

// Classify determines the record type from the raw texts of a change.
// Exactly one of oldText/newText may be empty (new record or deletion), so
// the concatenation always carries the leading line of whichever side is
// populated. A row with no text at all, or a leading line that does not
// match, yields ErrUnclassifiable rather than a crash on bad stored data.
func Classify(oldText, newText string) (Type, error) {
	text := oldText + newText
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no record text", ErrUnclassifiable)
	}

	match := leadingLine.FindStringSubmatch(text)
	if match == nil {
		return "", fmt.Errorf("%w: leading line %q", ErrUnclassifiable, firstLine(text))
	}

	if typ, ok := tagTypes[match[1]]; ok {
		return typ, nil
	}
	return TypeGeneric, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
