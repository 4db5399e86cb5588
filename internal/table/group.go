package table

import (
	"cmp"
	"slices"
)

// Group is the set of rows sharing one partition key.
type Group struct {
	Key   string
	Year  int
	Month int
	Rows  []Row
}

// Groups splits the table by partition key. Groups are ordered by year
// and month; rows keep their table order within a group.
func (t *Table) Groups() []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range t.Rows {
		key := PartitionKey(r.Date)
		i, ok := index[key]
		if !ok {
			d := r.Date.UTC()
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Year: d.Year(), Month: int(d.Month())})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	})
	return groups
}
