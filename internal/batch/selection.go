package batch

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"quickview/internal/services"
)

// ParseSelection resolves expr against a list of count items and returns the
// chosen 0-based indices in order. expr is "all", or a comma-separated list
// of 1-based positions "n" and inclusive ranges "a-b". Positions named more
// than once are kept at their first appearance.
func ParseSelection(expr string, count int) ([]int, error) {
	raw := expr
	expr = strings.ToLower(strings.TrimSpace(width.Narrow.String(expr)))
	if count <= 0 {
		return nil, selectionError(raw, "nothing to select from")
	}
	if expr == "" {
		return nil, selectionError(raw, "selection is empty")
	}
	if expr == "all" {
		return indexRange(1, count), nil
	}

	var out []int
	seen := make(map[int]struct{})
	for _, part := range strings.Split(expr, ",") {
		indices, err := parsePart(raw, strings.TrimSpace(part), count)
		if err != nil {
			return nil, err
		}
		for _, idx := range indices {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}
	return out, nil
}

func parsePart(raw, part string, count int) ([]int, error) {
	if part == "" {
		return nil, selectionError(raw, "empty entry in list")
	}
	if start, end, ok := strings.Cut(part, "-"); ok {
		from, err := parsePosition(raw, start, count)
		if err != nil {
			return nil, err
		}
		to, err := parsePosition(raw, end, count)
		if err != nil {
			return nil, err
		}
		if from > to {
			return nil, selectionError(raw, fmt.Sprintf("range start %d is after end %d", from, to))
		}
		return indexRange(from, to), nil
	}
	n, err := parsePosition(raw, part, count)
	if err != nil {
		return nil, err
	}
	return []int{n - 1}, nil
}

// Select returns the items chosen by expr, preserving their order.
func Select[T any](items []T, expr string) ([]T, error) {
	indices, err := ParseSelection(expr, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(indices))
	for _, idx := range indices {
		out = append(out, items[idx])
	}
	return out, nil
}

func parsePosition(raw, value string, count int) (int, error) {
	value = strings.TrimSpace(value)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, selectionError(raw, fmt.Sprintf("%q is not a number", value))
	}
	if n < 1 || n > count {
		return 0, selectionError(raw, fmt.Sprintf("%d is outside 1-%d", n, count))
	}
	return n, nil
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, n-1)
	}
	return out
}

func selectionError(expr, reason string) error {
	return services.Wrap(services.ErrValidation, "batch", "select", fmt.Sprintf("invalid selection %q: %s (use all, n, a-b or a comma list of those)", expr, reason), nil)
}
