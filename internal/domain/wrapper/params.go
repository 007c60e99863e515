package wrapper

import (
	"strings"

	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Subtype keys understood by RewriteParameters
const (
	SubtypeCategory   = "category"
	SubtypeArgument   = "argument"
	CategoryShareCode = "shareCode"
)

const defaultShareCodeFlag = "-shareCode"

// RewriteParameters applies subtype values to the launch parameters of
// exp. Only the shareCode category is rewritten: the flag and its value
// replace any previous occurrence.
func RewriteParameters(exp types.Experience, values map[string]string) types.Experience {
	if exp.Subtype[SubtypeCategory] != CategoryShareCode {
		return exp
	}
	code := strings.TrimSpace(values[CategoryShareCode])
	if code == "" {
		return exp
	}
	flag := exp.Subtype[SubtypeArgument]
	if flag == "" {
		flag = defaultShareCodeFlag
	}

	fields := strings.Fields(exp.Parameters)
	kept := make([]string, 0, len(fields)+2)
	for i := 0; i < len(fields); i++ {
		if fields[i] == flag {
			i++
			continue
		}
		kept = append(kept, fields[i])
	}
	exp.Parameters = strings.Join(append(kept, flag, code), " ")
	return exp
}

// splitArgs turns a parameter string into process arguments
func splitArgs(params string) []string {
	return strings.Fields(params)
}
