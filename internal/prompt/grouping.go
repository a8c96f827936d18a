package prompt

import (
	"fmt"
	"sort"
	"strings"

	"lessonforge/internal/types"
)

// GroupingKind names how the students will be taught together.
type GroupingKind string

const (
	GroupIndividual   GroupingKind = "individual"
	GroupWhole        GroupingKind = "whole_group"
	GroupSimilarLevel GroupingKind = "similar_level"
	GroupTiered       GroupingKind = "tiered"
	GroupSmallGroups  GroupingKind = "small_groups"
)

// Grouping is the chosen strategy plus, for small groups, the student split.
type Grouping struct {
	Kind        GroupingKind
	GradeSpread int
	Groups      [][]string
	Text        string
}

// ChooseGrouping picks a strategy from the grade spread and group size.
func ChooseGrouping(students []types.Student, maxGroupSize int) Grouping {
	if len(students) == 0 {
		return Grouping{Kind: GroupIndividual}
	}
	minGrade, maxGrade := students[0].GradeLevel, students[0].GradeLevel
	for _, s := range students[1:] {
		if s.GradeLevel < minGrade {
			minGrade = s.GradeLevel
		}
		if s.GradeLevel > maxGrade {
			maxGrade = s.GradeLevel
		}
	}
	g := Grouping{GradeSpread: maxGrade - minGrade}

	switch {
	case len(students) == 1:
		g.Kind = GroupIndividual
		g.Text = "Individual instruction: one student. Pace the lesson to this student and check for understanding after every step."
	case maxGroupSize > 0 && len(students) > maxGroupSize:
		g.Kind = GroupSmallGroups
		g.Groups = splitGroups(students, maxGroupSize)
		var parts []string
		for i, grp := range g.Groups {
			parts = append(parts, fmt.Sprintf("Group %d: %s", i+1, strings.Join(grp, ", ")))
		}
		g.Text = fmt.Sprintf("Small groups: %d students exceed the group limit of %d. Run a short shared opener, then rotate these groups through stations:\n%s",
			len(students), maxGroupSize, strings.Join(parts, "\n"))
	case g.GradeSpread == 0:
		g.Kind = GroupWhole
		g.Text = fmt.Sprintf("Whole group: all students are in grade %s. Teach one shared objective with individual supports.",
			types.GradeLabel(minGrade))
	case g.GradeSpread == 1:
		g.Kind = GroupSimilarLevel
		g.Text = fmt.Sprintf("Similar level: grades %s to %s. Teach one objective with minor differentiation in practice items.",
			types.GradeLabel(minGrade), types.GradeLabel(maxGrade))
	default:
		g.Kind = GroupTiered
		g.Text = fmt.Sprintf("Tiered instruction: grades %s to %s span %d levels. Use a common concept with tiered tasks for each level.",
			types.GradeLabel(minGrade), types.GradeLabel(maxGrade), g.GradeSpread)
	}
	return g
}

// splitGroups orders students by grade then id and chunks them into
// near-equal groups of at most size students.
func splitGroups(students []types.Student, size int) [][]string {
	sorted := append([]types.Student(nil), students...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GradeLevel != sorted[j].GradeLevel {
			return sorted[i].GradeLevel < sorted[j].GradeLevel
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := (len(sorted) + size - 1) / size
	groups := make([][]string, n)
	base, extra := len(sorted)/n, len(sorted)%n
	idx := 0
	for i := 0; i < n; i++ {
		count := base
		if i < extra {
			count++
		}
		for j := 0; j < count; j++ {
			groups[i] = append(groups[i], sorted[idx].ID)
			idx++
		}
	}
	return groups
}
