package extract

import "strings"

const sectionMarker = "@@"

// Group is a named run of ingredient or instruction lines. An empty Name means ungrouped.
type Group struct {
	Name  string   `json:"name,omitempty"`
	Items []string `json:"items"`
}

// Flatten turns groups into a flat list. A named group emits "@@Name@@" before its items;
// unnamed groups emit only their items. Blank items are dropped.
func Flatten(groups []Group) []string {
	out := make([]string, 0)
	for _, g := range groups {
		if name := strings.TrimSpace(g.Name); name != "" {
			out = append(out, SectionHeader(name))
		}
		for _, item := range g.Items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// SectionHeader formats name as an in-list section marker
func SectionHeader(name string) string {
	return sectionMarker + name + sectionMarker
}

// ParseSectionHeader reports whether line is a section marker and returns its name.
func ParseSectionHeader(line string) (string, bool) {
	if len(line) <= 2*len(sectionMarker) ||
		!strings.HasPrefix(line, sectionMarker) || !strings.HasSuffix(line, sectionMarker) {
		return "", false
	}
	return line[len(sectionMarker) : len(line)-len(sectionMarker)], true
}

// Sections is the inverse of Flatten. Lines before the first marker form an unnamed group.
func Sections(lines []string) []Group {
	var groups []Group
	for _, line := range lines {
		if name, ok := ParseSectionHeader(line); ok {
			groups = append(groups, Group{Name: name, Items: []string{}})
			continue
		}
		if len(groups) == 0 {
			groups = append(groups, Group{Items: []string{}})
		}
		last := &groups[len(groups)-1]
		last.Items = append(last.Items, line)
	}
	return groups
}

// CountItems counts the lines that are not section markers
func CountItems(lines []string) int {
	n := 0
	for _, line := range lines {
		if _, ok := ParseSectionHeader(line); !ok {
			n++
		}
	}
	return n
}
