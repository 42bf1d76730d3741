package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name   string
		groups []Group
		want   []string
	}{
		{
			name:   "named group emits header then items",
			groups: []Group{{Name: "Sauce", Items: []string{"2 tbsp soy", "1 tsp sugar"}}},
			want:   []string{"@@Sauce@@", "2 tbsp soy", "1 tsp sugar"},
		},
		{
			name:   "unnamed group emits only items",
			groups: []Group{{Items: []string{"salt", "pepper"}}},
			want:   []string{"salt", "pepper"},
		},
		{
			name: "mixed groups keep order and drop blanks",
			groups: []Group{
				{Items: []string{"1 lb pasta", "  "}},
				{Name: " Topping ", Items: []string{" cheese "}},
			},
			want: []string{"1 lb pasta", "@@Topping@@", "cheese"},
		},
		{name: "nothing", groups: nil, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.groups))
		})
	}
}

func TestSections_InvertsFlatten(t *testing.T) {
	groups := []Group{
		{Items: []string{"1 lb pasta"}},
		{Name: "Sauce", Items: []string{"2 tbsp soy", "1 tsp sugar"}},
		{Name: "Garnish", Items: []string{}},
	}
	assert.Equal(t, groups, Sections(Flatten(groups)))
	assert.Nil(t, Sections(nil))
}

func TestParseSectionHeader(t *testing.T) {
	name, ok := ParseSectionHeader("@@Sauce@@")
	assert.True(t, ok)
	assert.Equal(t, "Sauce", name)

	for _, line := range []string{"@@@@", "@@Sauce", "Sauce@@", "plain", ""} {
		_, ok := ParseSectionHeader(line)
		assert.False(t, ok, line)
	}
	assert.Equal(t, 2, CountItems([]string{"@@A@@", "x", "@@B@@", "y"}))
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"PT45M", 45, true},
		{"PT1H30M", 90, true},
		{"P0DT2H", 120, true},
		{"pt20m", 20, true},
		{"PT1H0M30S", 61, true},
		{"PT90S", 2, true},
		{"P1D", 1440, true},
		{"PT0.5H", 30, true},
		{"P99999999999999999999Y", maxDurationMinutes, true},
		{"PT99999999999999999999999H", maxDurationMinutes, true},
		{"P", 0, false},
		{"PT", 0, false},
		{"45 minutes", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseISODuration(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHumanizeMinutes(t *testing.T) {
	assert.Equal(t, "45 minutes", HumanizeMinutes(45))
	assert.Equal(t, "1 hour 30 minutes", HumanizeMinutes(90))
	assert.Equal(t, "2 hours", HumanizeMinutes(120))
	assert.Equal(t, "1 hour 1 minute", HumanizeMinutes(61))
	assert.Equal(t, "0 minutes", HumanizeMinutes(0))
}

func TestNormalizeTime(t *testing.T) {
	human, minutes := NormalizeTime(" PT45M ")
	assert.Equal(t, "45 minutes", human)
	require.NotNil(t, minutes)
	assert.Equal(t, 45, *minutes)

	human, minutes = NormalizeTime(" 1 1/2 hours ")
	assert.Equal(t, "1 1/2 hours", human)
	assert.Nil(t, minutes)
}

func TestLinkRewriter(t *testing.T) {
	r, err := NewLinkRewriter("https://www.cooking.example.com", "/recipes/", "/#/recipe/")
	require.NoError(t, err)

	tests := []struct{ in, want string }{
		{"see https://cooking.example.com/recipes/1-a", "see /#/recipe/1-a"},
		{"see http://www.cooking.example.com/recipes/1-a and https://cooking.example.com/recipes/2-b", "see /#/recipe/1-a and /#/recipe/2-b"},
		{"HTTPS://Cooking.Example.com/recipes/3-c", "/#/recipe/3-c"},
		{"https://cooking.example.com/guides/1-a", "https://cooking.example.com/guides/1-a"},
		{"https://other.example.com/recipes/1-a", "https://other.example.com/recipes/1-a"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Rewrite(tt.in))
	}

	items := []string{"https://cooking.example.com/recipes/1-a", "plain"}
	assert.Equal(t, []string{"/#/recipe/1-a", "plain"}, r.RewriteAll(items))

	_, err = NewLinkRewriter("::", "/recipes/", "/#/recipe/")
	assert.Error(t, err)
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"comma separated", `"soup, easy ,  weeknight  dinner,,soup"`, []string{"soup", "easy", "weeknight dinner"}},
		{"list of strings", `["Vegan", "vegan", "Quick"]`, []string{"Vegan", "Quick"}},
		{"tagged objects", `[{"name": "Dinner"}, {"id": 3}, {"name": ""}]`, []string{"Dinner"}},
		{"single object", `{"name": "Lunch"}`, []string{"Lunch"}},
		{"number", `42`, nil},
		{"null", `null`, nil},
		{"invalid", `{`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeywords(json.RawMessage(tt.raw)))
		})
	}
	assert.Nil(t, ParseKeywords(nil))
}

func TestFlexDecoding(t *testing.T) {
	var v struct {
		S1 flexString `json:"s1"`
		S2 flexString `json:"s2"`
		S3 flexString `json:"s3"`
		S4 flexString `json:"s4"`
		N1 flexNumber `json:"n1"`
		N2 flexNumber `json:"n2"`
		N3 flexNumber `json:"n3"`
	}
	err := json.Unmarshal([]byte(`{"s1":"4 servings","s2":6,"s3":null,"s4":["","8"],"n1":4.5,"n2":"12","n3":"n/a"}`), &v)
	require.NoError(t, err)

	assert.Equal(t, flexString("4 servings"), v.S1)
	assert.Equal(t, flexString("6"), v.S2)
	assert.Equal(t, flexString(""), v.S3)
	assert.Equal(t, flexString("8"), v.S4)
	assert.Equal(t, 4.5, *v.N1.floatPtr())
	assert.Equal(t, 12, *v.N2.intPtr())
	assert.Nil(t, v.N3.floatPtr())
}
