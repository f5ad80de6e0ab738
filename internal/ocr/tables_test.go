package ocr

import (
	"testing"

	"fraudocr/pkg/models"
)

func TestParseTables(t *testing.T) {
	html := `<p>intro</p><table><tr><th>Crime Type</th><th>Count</th></tr>
<tr><td>Phishing/Spoofing</td><td>23,252</td></tr><tr><td>Tech Support</td><td>16,777</td></tr></table>`

	tables := ParseTables(html)
	if len(tables) != 1 || len(tables[0]) != 3 {
		t.Fatalf("tables = %v", tables)
	}
	if tables[0][1][0] != "Phishing/Spoofing" || tables[0][2][1] != "16,777" {
		t.Fatalf("rows = %v", tables[0])
	}
	if ParseTables("no tables here") != nil {
		t.Fatal("expected nil for text without tables")
	}
}

func TestExtractStateFigures(t *testing.T) {
	ocr := &models.OCRResult{Filename: "2023.pdf", Results: []models.PageResult{
		{Page: 1, Status: models.PageStatusSuccess, Text: `Complaints by State
<table><tr><td>Rank</td><td>State</td><td>Count</td></tr>
<tr><td>1</td><td>California</td><td>77,271</td></tr>
<tr><td>2</td><td>West Virginia</td><td>1,406</td></tr>
<tr><td>3</td><td>Virginia</td><td>9,900</td></tr></table>`},
		{Page: 2, Status: models.PageStatusSuccess, Text: `Losses by State
<table><tr><td>Rank</td><td>State</td><td>Loss</td></tr>
<tr><td>1</td><td>California</td><td>&#36;2,159,000,000</td></tr>
<tr><td>2</td><td>District of</td><td>&#36;55,000,000</td></tr></table>`},
		{Page: 3, Status: models.PageStatusFailure, Text: "<table><tr><td>Texas</td><td>999,999</td></tr></table>"},
	}}

	figs := ExtractStateFigures(ocr)
	got := map[string]StateFigure{}
	for _, f := range figs {
		got[f.State] = f
	}

	if len(got) != 4 {
		t.Fatalf("figures = %+v", figs)
	}
	if ca := got["California"]; ca.Count != 77271 || ca.Loss != 2159000000 {
		t.Errorf("California = %+v", ca)
	}
	if wv := got["West Virginia"]; wv.Count != 1406 {
		t.Errorf("West Virginia = %+v", wv)
	}
	if va := got["Virginia"]; va.Count != 9900 {
		t.Errorf("Virginia = %+v", va)
	}
	if dc := got["District of Columbia"]; dc.Loss != 55000000 {
		t.Errorf("District of Columbia = %+v", dc)
	}
	if _, ok := got["Texas"]; ok {
		t.Error("failed pages must be ignored")
	}
}
