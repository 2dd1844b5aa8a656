package holocrypt

import (
	"maps"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-holocrypt/middleware/csrf"
)

var TemplateUserKey = "current_user"

// AppName is shown in page titles and the navigation bar
const AppName = "HoloCrypt"

// NotAvailable replaces profile fields the store did not report
const NotAvailable = "Not available"

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006, 3:04:05 PM"
)

// UserView is the template friendly projection of a User
type UserView struct {
	ID           string
	ShortID      string
	Email        string
	Initial      string
	CreatedAt    string
	LastSignInAt string
}

// NewUserView formats u for display. Missing fields read "Not available".
func NewUserView(u *User) UserView {
	v := UserView{
		ID:           NotAvailable,
		Email:        NotAvailable,
		CreatedAt:    NotAvailable,
		LastSignInAt: NotAvailable,
	}
	if u == nil {
		v.Initial = "?"
		return v
	}

	if u.ID != "" {
		v.ID = u.ID
		v.ShortID = shortID(u.ID)
	}
	v.Initial = "?"
	if u.Email != "" {
		v.Email = u.Email
		v.Initial = strings.ToUpper(u.Email[:1])
	}

	if u.CreatedAt != nil && !u.CreatedAt.IsZero() {
		v.CreatedAt = u.CreatedAt.Local().Format(dateLayout)
	}
	if u.LastSignInAt != nil && !u.LastSignInAt.IsZero() {
		v.LastSignInAt = u.LastSignInAt.Local().Format(dateTimeLayout)
	}
	return v
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// TemplateHelpers returns the data every view can rely on, regardless of
// the request: the app name, the csrf field names and a formatter for
// timestamps.
func TemplateHelpers() map[string]any {
	return map[string]any{
		"app_name":         AppName,
		"is_authenticated": false,
		"csrf_field_name":  csrf.DefaultFormFieldName,
		"csrf_header_name": csrf.DefaultHeaderName,
		"format_time":      formatTime,
	}
}

// ViewContext merges the request scoped helpers into data: csrf token,
// current user and authentication flag. Keys already in data win.
func ViewContext(c *fiber.Ctx, data fiber.Map) fiber.Map {
	out := fiber.Map(TemplateHelpers())
	maps.Copy(out, csrf.TemplateHelpers(c, csrf.DefaultContextKey))

	if state, ok := viewState(c); ok && state.Authenticated() {
		out["is_authenticated"] = true
		out[TemplateUserKey] = NewUserView(state.User())
	}

	maps.Copy(out, data)
	return out
}

// GetTemplateUser returns the user the guard or client scope resolved for
// the request.
func GetTemplateUser(c *fiber.Ctx) (*User, bool) {
	state, ok := viewState(c)
	if !ok || !state.Authenticated() {
		return nil, false
	}
	return state.User(), true
}

func viewState(c *fiber.Ctx) (AuthState, bool) {
	if state, ok := c.Locals(AuthStateLocalsKey).(AuthState); ok {
		return state, true
	}
	client, err := ClientFromCtx(c)
	if err != nil || client.Auth == nil {
		return AuthState{}, false
	}
	return client.Auth.State(), true
}

func formatTime(t any) string {
	switch v := t.(type) {
	case time.Time:
		if v.IsZero() {
			return NotAvailable
		}
		return v.Local().Format(dateTimeLayout)
	case *time.Time:
		if v == nil || v.IsZero() {
			return NotAvailable
		}
		return v.Local().Format(dateTimeLayout)
	default:
		return NotAvailable
	}
}
