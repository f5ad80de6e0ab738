package report

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"fraudocr/pkg/models"
)

const (
	topCategories  = 15
	topComparisons = 10
	topStates      = 20
)

// Summary is the headline block of a report.
type Summary struct {
	Documents    int
	Formatted    int
	TotalLoss    float64
	TotalVictims float64
	Years        []int
}

// Total is an aggregated loss/victim pair.
type Total struct {
	Label   string
	Loss    float64
	Victims float64
	Years   []int
}

// YearTotal is one point of the yearly trend.
type YearTotal struct {
	Year    int
	Loss    float64
	Victims float64
}

// Comparison holds one category's losses per year.
type Comparison struct {
	Category string
	Total    float64
	ByYear   map[int]float64
}

// StateTotal aggregates a state over every document.
type StateTotal struct {
	State     string
	Loss      float64
	Victims   float64
	Incidents float64
}

// Report is the full set of aggregates over the cached records.
type Report struct {
	GeneratedAt time.Time
	Summary     Summary
	Categories  []Total
	AgeGroups   []Total
	Trend       []YearTotal
	Comparison  []Comparison
	Years       []int
	States      []StateTotal

	// StatesByLoss is false when no state carries a loss figure and the
	// ranking falls back to incidents.
	StatesByLoss bool
}

// Build aggregates records into a report.
func Build(records []*models.Record) *Report {
	metrics := make([]DocumentMetrics, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		metrics = append(metrics, ExtractMetrics(rec))
	}
	return BuildFromMetrics(metrics)
}

// BuildFromMetrics aggregates already extracted document metrics.
func BuildFromMetrics(metrics []DocumentMetrics) *Report {
	r := &Report{GeneratedAt: time.Now().UTC()}
	r.Summary = summarize(metrics)
	r.Categories = topN(sumFigures(metrics, func(m DocumentMetrics) []Figure { return m.Categories }, nil), topCategories)
	r.AgeGroups = orderAgeGroups(sumFigures(metrics, func(m DocumentMetrics) []Figure { return m.AgeGroups }, NormalizeAgeGroup))
	r.Trend = trend(metrics)
	r.Comparison, r.Years = compare(metrics)
	r.States, r.StatesByLoss = states(metrics)
	return r
}

func summarize(metrics []DocumentMetrics) Summary {
	s := Summary{Documents: len(metrics), Years: []int{}}
	years := map[int]bool{}
	for _, m := range metrics {
		if m.Formatted {
			s.Formatted++
		}
		s.TotalLoss += m.TotalLoss
		s.TotalVictims += m.TotalVictims
		if m.Year != 0 && !years[m.Year] {
			years[m.Year] = true
			s.Years = append(s.Years, m.Year)
		}
	}
	sort.Ints(s.Years)
	return s
}

func sumFigures(metrics []DocumentMetrics, pick func(DocumentMetrics) []Figure, normalize func(string) string) []Total {
	byLabel := map[string]*Total{}
	var order []string
	for _, m := range metrics {
		for _, f := range pick(m) {
			label := strings.TrimSpace(f.Label)
			if normalize != nil {
				label = normalize(label)
			}
			if label == "" || label == "Unknown" {
				continue
			}
			t, ok := byLabel[label]
			if !ok {
				t = &Total{Label: label}
				byLabel[label] = t
				order = append(order, label)
			}
			t.Loss += f.Loss
			t.Victims += f.Victims
			if m.Year != 0 && !slices.Contains(t.Years, m.Year) {
				t.Years = append(t.Years, m.Year)
				sort.Ints(t.Years)
			}
		}
	}
	out := make([]Total, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	return out
}

func topN(totals []Total, n int) []Total {
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].Loss > totals[j].Loss })
	if len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

// AgeGroupOrder is the display order of normalized age groups, oldest first.
var AgeGroupOrder = []string{"Over 60", "50-59", "40-49", "30-39", "20-29", "Under 20"}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeAgeGroup maps the many spellings of an age bracket onto the labels
// in AgeGroupOrder. Unknown labels are returned unchanged.
func NormalizeAgeGroup(label string) string {
	if label == "" {
		return ""
	}
	l := strings.ToLower(strings.TrimSpace(label))
	l = spaceRun.ReplaceAllString(l, " ")
	l = strings.NewReplacer(" - ", "-", "–", "-", "—", "-").Replace(l)

	has := func(parts ...string) bool {
		for _, p := range parts {
			if !strings.Contains(l, p) {
				return false
			}
		}
		return true
	}
	switch {
	case strings.Contains(l, "over") && (strings.Contains(l, "60") || strings.Contains(l, "sixty")),
		strings.HasPrefix(l, "60+"):
		return "Over 60"
	case has("50", "59"):
		return "50-59"
	case has("40", "49"):
		return "40-49"
	case has("30", "39"):
		return "30-39"
	case has("20", "29"):
		return "20-29"
	case has("under", "20"), strings.HasPrefix(l, "< 20"), strings.HasPrefix(l, "<20"):
		return "Under 20"
	}
	return label
}

func orderAgeGroups(totals []Total) []Total {
	rank := make(map[string]int, len(AgeGroupOrder))
	for i, g := range AgeGroupOrder {
		rank[g] = i
	}
	pos := func(label string) int {
		if i, ok := rank[label]; ok {
			return i
		}
		return len(AgeGroupOrder)
	}
	sort.SliceStable(totals, func(i, j int) bool { return pos(totals[i].Label) < pos(totals[j].Label) })
	return totals
}

// trend is empty unless at least two distinct years carry data.
func trend(metrics []DocumentMetrics) []YearTotal {
	byYear := map[int]*YearTotal{}
	for _, m := range metrics {
		if m.Year == 0 {
			continue
		}
		y, ok := byYear[m.Year]
		if !ok {
			y = &YearTotal{Year: m.Year}
			byYear[m.Year] = y
		}
		y.Loss += m.TotalLoss
		y.Victims += m.TotalVictims
	}
	if len(byYear) < 2 {
		return nil
	}
	out := make([]YearTotal, 0, len(byYear))
	for _, y := range byYear {
		out = append(out, *y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func compare(metrics []DocumentMetrics) ([]Comparison, []int) {
	byCat := map[string]*Comparison{}
	years := map[int]bool{}
	for _, m := range metrics {
		if m.Year == 0 {
			continue
		}
		for _, f := range m.Categories {
			if f.Label == "" {
				continue
			}
			c, ok := byCat[f.Label]
			if !ok {
				c = &Comparison{Category: f.Label, ByYear: map[int]float64{}}
				byCat[f.Label] = c
			}
			c.ByYear[m.Year] += f.Loss
			c.Total += f.Loss
			years[m.Year] = true
		}
	}
	out := make([]Comparison, 0, len(byCat))
	for _, c := range byCat {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > topComparisons {
		out = out[:topComparisons]
	}

	yl := make([]int, 0, len(years))
	for y := range years {
		yl = append(yl, y)
	}
	sort.Ints(yl)
	return out, yl
}

func states(metrics []DocumentMetrics) ([]StateTotal, bool) {
	byState := map[string]*StateTotal{}
	for _, m := range metrics {
		for _, s := range m.States {
			if s.State == "" {
				continue
			}
			incidents := s.Incidents
			if incidents == 0 {
				incidents = s.Victims
			}
			if s.Loss <= 0 && s.Victims <= 0 && incidents <= 0 {
				continue
			}
			t, ok := byState[s.State]
			if !ok {
				t = &StateTotal{State: s.State}
				byState[s.State] = t
			}
			t.Loss += s.Loss
			t.Victims += s.Victims
			t.Incidents += incidents
		}
	}

	out := make([]StateTotal, 0, len(byState))
	var totalLoss float64
	for _, t := range byState {
		out = append(out, *t)
		totalLoss += t.Loss
	}
	byLoss := totalLoss > 0
	key := func(t StateTotal) float64 {
		if byLoss {
			return t.Loss
		}
		return t.Incidents
	}
	sort.Slice(out, func(i, j int) bool {
		if key(out[i]) != key(out[j]) {
			return key(out[i]) > key(out[j])
		}
		return out[i].State < out[j].State
	})
	if len(out) > topStates {
		out = out[:topStates]
	}
	return out, byLoss
}
