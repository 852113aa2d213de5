package contacts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hri/contact-sync/internal/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var welcomeHeader = []string{
	"Email", "FirstName", "Surname", "Mobile", "SerialNum", "Title", "Address",
	"Suburb", "State", "Postcode", "DOB", "1stDebitDate", "Amount",
}

var segmentHeader = []string{
	"Email Address", "First name", "Last name", "Constituent Number", "Title",
	"Appeal", "Package", "Description", "Informal Salutation", "Fullname",
}

func welcomeRow(email string) []string {
	return []string{email, "Ann", "Lee", "0412345678", "CN-1", "Ms", "1 High St",
		"Carlton", "VIC", "3053", "1980-02-01", "2024-01-05", "25"}
}

func segmentRow(email, appeal, pack string) []string {
	return []string{email, "Bob", "Ng", "CN-2", "Mr", appeal, pack, "desc", "Bobby", "Bob Ng"}
}

func TestMapWelcome(t *testing.T) {
	table := tabular.NewTable(welcomeHeader, [][]string{welcomeRow("ann@example.com")})

	res, err := Map(SourceWelcome, "uploads/Welcome_Jan.2024.xlsx", table)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "ann@example.com", rec.Email)
	assert.Equal(t, "Lee", rec.LastName)
	assert.Equal(t, "0412345678", rec.Phone)
	assert.Equal(t, []string{"71"}, rec.ListIDs())
	assert.Equal(t, []string{"Welcome_Jan"}, rec.Tags)

	v, ok := rec.Field(2)
	assert.True(t, ok)
	assert.Equal(t, "CN-1", v)
	v, _ = rec.Field(29)
	assert.Equal(t, "2024-01-05", v)
}

func TestMapWelcomeListByFileName(t *testing.T) {
	tests := map[string]string{
		"1stWeekEmail_batch.csv":  "26",
		"2ndMonthEmail.xlsx":      "246",
		"3rdMonthEmail.xls":       "241",
		`share\2YearEmail_AU.csv`: "72",
	}
	for file, want := range tests {
		t.Run(file, func(t *testing.T) {
			table := tabular.NewTable(welcomeHeader, [][]string{welcomeRow("x@example.com")})
			res, err := Map(SourceWelcome, file, table)
			require.NoError(t, err)
			require.Len(t, res.Records, 1)
			assert.Equal(t, []string{want}, res.Records[0].ListIDs())
		})
	}
}

func TestMapWelcomeNoListRule(t *testing.T) {
	table := tabular.NewTable(welcomeHeader, [][]string{welcomeRow("x@example.com")})
	_, err := Map(SourceWelcome, "Newsletter.csv", table)
	assert.ErrorIs(t, err, ErrNoListRule)
}

func TestMapSegmentation(t *testing.T) {
	table := tabular.NewTable(segmentHeader, [][]string{
		segmentRow("a@example.com", "AU2024", "RG25_Active-Jan"),
		segmentRow("b@example.com", "AU2024", "SG_NonInsight-1"),
		segmentRow("c@example.com", "AU2024", "SG_Insight-1"),
		segmentRow("d@example.com", "NZ2024", "RG_Lapsed"),
		segmentRow("e@example.com", "NZ2024", "News_Other-3"),
		segmentRow("f@example.com", "UK2024", "RG_Active"),
		segmentRow("", "AU2024", "RG_Active"),
		{"", "", "", "", "", "", "", "", "", ""},
	})

	res, err := Map(SourceSegmentation, "Segments.csv", table)
	require.NoError(t, err)

	require.Len(t, res.Records, 5)
	assert.Equal(t, 2, res.Skipped, "unmatched appeal and blank email")

	want := []string{"199", "237", "236", "254", "258"}
	for i, rec := range res.Records {
		assert.Equal(t, []string{want[i]}, rec.ListIDs(), rec.Email)
	}
	assert.Equal(t, []string{"Segments_Active"}, res.Records[0].Tags)
	assert.Equal(t, []string{"Segments_Lapsed"}, res.Records[3].Tags)
	assert.Empty(t, res.Records[0].Phone)

	v, _ := res.Records[0].Field(96)
	assert.Equal(t, "AU2024", v)
}

func TestMapMissingColumn(t *testing.T) {
	header := append([]string{}, segmentHeader...)
	header[6] = "Pkg"
	table := tabular.NewTable(header, nil)

	_, err := Map(SourceSegmentation, "Segments.csv", table)
	var mce *MissingColumnError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, "Package", mce.Column)
	assert.Equal(t, "Segments.csv", mce.File)
}

func TestRecordJSONShape(t *testing.T) {
	rec := Record{
		Email:     "a@example.com",
		Tags:      []string{"t"},
		Fields:    []CustomField{{ID: 2, Value: "CN-1"}},
		Subscribe: []Subscription{{ListID: "71"}},
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"email": "a@example.com", "first_name": "", "last_name": "",
		"tags": ["t"], "fields": [{"id": 2, "value": "CN-1"}],
		"subscribe": [{"listid": "71"}]
	}`, string(b))
}

func TestFileBase(t *testing.T) {
	assert.Equal(t, "Welcome_2024", FileBase(`uploads\Welcome_2024.v2.xlsx`))
	assert.Equal(t, "Welcome", FileBase("a/b/Welcome.csv"))
	assert.Equal(t, "plain", FileBase("plain"))
}
