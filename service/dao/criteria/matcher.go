package criteria

import (
	"github.com/vaultflow/vaultflow/service/dao"
)

// FilterByStatus evaluates list parameters against a record's status value.
// With no parameters every record matches.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	switch len(parameters) {
	case 0:
		return true
	case 1:
		if parameters[0].Name == "Status" {
			switch actual := parameters[0].Value.(type) {
			case string:
				return status == actual
			case []string:
				for _, s := range actual {
					if status == s {
						return true
					}
				}
				return false
			}
		}
	}
	return true
}
