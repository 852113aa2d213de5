package contacts

import (
	"fmt"
	"strings"

	"github.com/hri/contact-sync/internal/tabular"
)

type fieldColumn struct {
	id     int
	column string
}

// listRule maps a substring match to a list id. Welcome rules match on name,
// segment rules on appeal and pack.
type listRule struct {
	appeal string
	pack   string
	name   string
	listID string
}

// Welcome series lists, chosen by file name. First match wins.
var welcomeRules = []listRule{
	{name: "Welcome", listID: "71"},        // Donor Series - Welcome - Australia
	{name: "1stWeekEmail", listID: "26"},   // Donor Series - Australia
	{name: "2ndMonthEmail", listID: "246"}, // Donor Series - Month 2 - Australia
	{name: "3rdMonthEmail", listID: "241"}, // Donor Series - Month 3 - Australia
	{name: "2YearEmail", listID: "72"},     // Donor Series - 2 Years - Australia
}

// Segment lists, chosen per row from Appeal and Package. First match wins.
// NonInsight is deliberately matched before Insight: "NonInsight" contains
// "Insight", and those packages belong on 237, not 236.
var segmentRules = []listRule{
	{appeal: "AU", pack: "Active", listID: "199"},     // RG Active
	{appeal: "AU", pack: "Lapsed", listID: "200"},     // RG Lapsed
	{appeal: "AU", pack: "NonInsight", listID: "237"}, // SG NonInsight
	{appeal: "AU", pack: "Insight", listID: "236"},    // SG Insight
	{appeal: "NZ", pack: "Active", listID: "256"},     // NZ RG Active
	{appeal: "NZ", pack: "Lapsed", listID: "254"},     // NZ RG Lapsed
	{appeal: "NZ", pack: "Other", listID: "258"},      // Newsletter NZ
}

var welcomeFields = []fieldColumn{
	{2, "SerialNum"}, // RE - Constituent ID
	{5, "Title"},
	{24, "Address"},
	{25, "Suburb"},
	{26, "State"},
	{27, "Postcode"},
	{28, "DOB"},
	{29, "1stDebitDate"},
	{30, "Amount"},
}

var segmentFields = []fieldColumn{
	{2, "Constituent Number"}, // RE - Constituent ID
	{5, "Title"},
	{96, "Appeal"},
	{97, "Package"},
	{134, "Description"},
	{113, "Informal Salutation"},
	{46, "Fullname"},
}

// RequiredColumns returns the columns a spreadsheet of the given source must carry.
func RequiredColumns(source Source) []string {
	switch source {
	case SourceWelcome:
		return append([]string{"Email", "FirstName", "Surname", "Mobile"}, columnsOf(welcomeFields)...)
	case SourceSegmentation:
		return append([]string{"Email Address", "First name", "Last name"}, columnsOf(segmentFields)...)
	}
	return nil
}

func columnsOf(fields []fieldColumn) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// Map converts every row of a spreadsheet from the given source into records.
// A missing required column fails the whole file with *MissingColumnError.
// Blank rows are ignored; rows without an email or a matching list are
// counted in Skipped.
func Map(source Source, file string, t *tabular.Table) (*FileResult, error) {
	required := RequiredColumns(source)
	if required == nil {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	for _, col := range required {
		if !t.Has(col) {
			return nil, &MissingColumnError{Source: source, File: file, Column: col}
		}
	}

	base := FileBase(file)
	result := &FileResult{File: file}

	var welcomeList string
	if source == SourceWelcome {
		welcomeList = matchWelcome(base)
		if welcomeList == "" {
			return nil, fmt.Errorf("%s file %q: %w", source, file, ErrNoListRule)
		}
	}

	for r := 0; r < t.Len(); r++ {
		if blankRow(t.Rows[r]) {
			continue
		}

		var rec Record
		var ok bool
		switch source {
		case SourceWelcome:
			rec, ok = welcomeRecord(t, r, base, welcomeList)
		case SourceSegmentation:
			rec, ok = segmentRecord(t, r, base)
		}
		if !ok {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

func welcomeRecord(t *tabular.Table, r int, base, listID string) (Record, bool) {
	email := t.Cell(r, "Email")
	if email == "" {
		return Record{}, false
	}
	return Record{
		Email:     email,
		FirstName: t.Cell(r, "FirstName"),
		LastName:  t.Cell(r, "Surname"),
		Phone:     t.Cell(r, "Mobile"),
		Tags:      []string{base},
		Fields:    fieldsFor(t, r, welcomeFields),
		Subscribe: []Subscription{{ListID: listID}},
	}, true
}

func segmentRecord(t *tabular.Table, r int, base string) (Record, bool) {
	email := t.Cell(r, "Email Address")
	if email == "" {
		return Record{}, false
	}
	appeal := t.Cell(r, "Appeal")
	pack := t.Cell(r, "Package")

	listID := matchSegment(appeal, pack)
	if listID == "" {
		return Record{}, false
	}

	return Record{
		Email:     email,
		FirstName: t.Cell(r, "First name"),
		LastName:  t.Cell(r, "Last name"),
		Tags:      []string{base + "_" + packageCode(pack)},
		Fields:    fieldsFor(t, r, segmentFields),
		Subscribe: []Subscription{{ListID: listID}},
	}, true
}

func fieldsFor(t *tabular.Table, r int, cols []fieldColumn) []CustomField {
	fields := make([]CustomField, len(cols))
	for i, c := range cols {
		fields[i] = CustomField{ID: c.id, Value: t.Cell(r, c.column)}
	}
	return fields
}

func matchWelcome(base string) string {
	for _, rule := range welcomeRules {
		if strings.Contains(base, rule.name) {
			return rule.listID
		}
	}
	return ""
}

func matchSegment(appeal, pack string) string {
	for _, rule := range segmentRules {
		if strings.Contains(appeal, rule.appeal) && strings.Contains(pack, rule.pack) {
			return rule.listID
		}
	}
	return ""
}

// packageCode extracts "Active" from "RG25_Active-Jan".
func packageCode(pack string) string {
	if i := strings.LastIndex(pack, "_"); i >= 0 {
		pack = pack[i+1:]
	}
	code, _, _ := strings.Cut(pack, "-")
	return code
}

// FileBase strips directories (either separator) and everything from the
// first dot: `uploads\Welcome_2024.v2.xlsx` → `Welcome_2024`.
func FileBase(file string) string {
	if i := strings.LastIndexAny(file, `/\`); i >= 0 {
		file = file[i+1:]
	}
	base, _, _ := strings.Cut(file, ".")
	return base
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
