// Package commands implements the pickup-log CLI commands.
package commands

import (
	"fmt"
	"strings"

	"github.com/oreon-project/pickup-go/pkg/log"
)

// ParseDirectionFlag converts a -direction flag value.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (want in, out)", s)
	}
}

// ParseCategoryFlag converts a -category flag value.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "wire":
		return log.CategoryWire, nil
	case "state":
		return log.CategoryState, nil
	case "discovery":
		return log.CategoryDiscovery, nil
	case "storage":
		return log.CategoryStorage, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (want wire, state, discovery, storage, error)", s)
	}
}

// ParseRoleFlag converts a -role flag value.
func ParseRoleFlag(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "responder":
		return log.RoleResponder, nil
	case "initiator":
		return log.RoleInitiator, nil
	default:
		return 0, fmt.Errorf("unknown role %q (want responder, initiator)", s)
	}
}
