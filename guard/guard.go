package guard

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// Action is the outcome of evaluating a rule.
type Action uint8

const (
	// ActionLoading means the session is still being resolved.
	ActionLoading Action = iota
	// ActionRedirect means navigate to Decision.Path.
	ActionRedirect
	// ActionRender means show the protected content.
	ActionRender
)

func (a Action) String() string {
	switch a {
	case ActionLoading:
		return "loading"
	case ActionRedirect:
		return "redirect"
	case ActionRender:
		return "render"
	default:
		return "unknown"
	}
}

// Rule describes the requirements of one protected route. An empty
// RequiredRole admits any authenticated user.
type Rule struct {
	RequiredRole     string
	LoginPath        string
	UnauthorizedPath string
}

// Decision is the result of Evaluate. Path is set only for ActionRedirect.
type Decision struct {
	Action Action
	Path   string
	// ToLogin marks the redirect of a visitor without a session, as opposed
	// to a role denial.
	ToLogin bool
}

// Evaluate decides what the route shows for snap. Refreshing counts as
// authenticated so a token refresh never bounces the user to login.
func Evaluate(snap goAuthClient.Snapshot, rule Rule) Decision {
	switch snap.Phase {
	case goAuthClient.PhaseInitializing:
		return Decision{Action: ActionLoading}
	case goAuthClient.PhaseAuthenticated, goAuthClient.PhaseRefreshing:
		if rule.RequiredRole != "" && !snap.HasRole(rule.RequiredRole) {
			return Decision{Action: ActionRedirect, Path: rule.UnauthorizedPath}
		}
		return Decision{Action: ActionRender}
	default:
		return Decision{Action: ActionRedirect, Path: rule.LoginPath, ToLogin: true}
	}
}

// RuleFor builds a Rule from the configured routes.
func RuleFor(routes goAuthClient.RoutesConfig, requiredRole string) Rule {
	return Rule{
		RequiredRole:     requiredRole,
		LoginPath:        routes.Login,
		UnauthorizedPath: routes.Unauthorized,
	}
}
