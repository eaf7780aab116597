package command

import (
	"strconv"

	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/rule"
)

// Permission decides whether an actor may use the rules command.
type Permission interface {
	CanMutate(actor notify.Actor) bool
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(actor notify.Actor) bool

// CanMutate implements Permission.
func (f PermissionFunc) CanMutate(actor notify.Actor) bool {
	return f(actor)
}

// AllowAll permits every actor.
var AllowAll = PermissionFunc(func(notify.Actor) bool { return true })

// OperatorLevel is the level implied by the "ops" setting.
const OperatorLevel = 2

// LevelPermission reads the required level from a rule on every check.
// The rule value may be "true" (everyone), "false" (console only), "ops"
// (OperatorLevel) or a number. The console is always allowed.
func LevelPermission(r *rule.Rule) Permission {
	return PermissionFunc(func(actor notify.Actor) bool {
		if actor.Console {
			return true
		}
		return actor.Level >= requiredLevel(r.Value().String())
	})
}

func requiredLevel(setting string) int {
	switch setting {
	case "true":
		return 0
	case "false":
		return int(^uint(0) >> 1)
	case "ops":
		return OperatorLevel
	}
	if n, err := strconv.Atoi(setting); err == nil {
		return n
	}
	return OperatorLevel
}
