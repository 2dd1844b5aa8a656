package holocrypt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// RegisterAuthRoutes mounts the login, register and logout handlers
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	app.Get(controller.Routes.Login, controller.LoginShow).Name("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).Name("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut).Name("sign-out.post")

	app.Get(controller.Routes.Register, controller.RegistrationShow).Name("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")
}

type AuthControllerRoutes struct {
	Login     string
	Logout    string
	Register  string
	Dashboard string
}

type AuthControllerViews struct {
	Login    string
	Register string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Metrics  *Metrics
	Activity ActivitySink
	Routes   *AuthControllerRoutes
	Views    *AuthControllerViews
	// Timeout bounds every session store call of a request
	Timeout time.Duration
	// RedirectDelay is how long the register success message stays up
	RedirectDelay time.Duration
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Debug = debug
		return a
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Logger = normalizeLogger(l)
		return a
	}
}

func WithControllerMetrics(m *Metrics) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Metrics = m
		return a
	}
}

func WithControllerActivity(s ActivitySink) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Activity = normalizeActivitySink(s)
		return a
	}
}

func WithControllerTimeout(d time.Duration) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if d > 0 {
			a.Timeout = d
		}
		return a
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	a := &AuthController{
		Logger:        defLogger{},
		Activity:      discardActivity,
		Timeout:       10 * time.Second,
		RedirectDelay: 3 * time.Second,
		Routes: &AuthControllerRoutes{
			Login:     "/login",
			Logout:    "/logout",
			Register:  "/register",
			Dashboard: "/dashboard",
		},
		Views: &AuthControllerViews{
			Login:    "login",
			Register: "register",
		},
	}

	for _, opt := range opts {
		a = opt(a)
	}

	return a
}

// LoginShow renders a fresh login form. Showing the form resets the
// attempt counter of the client.
func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	client, err := ClientFromCtx(c)
	if err != nil {
		return err
	}
	client.Throttle.Reset()
	return a.renderLogin(c, client, nil, "")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required.Error(MsgMissingCredentials),
			is.Email.Error(MsgInvalidEmail),
		),
		validation.Field(
			&r.Password,
			validation.Required.Error(MsgMissingCredentials),
		),
	)
}

// LoginPost runs one sign in attempt through the client throttle
func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	client, err := ClientFromCtx(c)
	if err != nil {
		return err
	}

	if err := client.Throttle.Begin(); err != nil {
		a.Metrics.throttled(err)
		a.record(c, client, ActivityEvent{
			EventType: ActivityEventLoginThrottled,
			Kind:      KindThrottled,
			Metadata:  map[string]any{"attempts": client.Throttle.Attempts()},
		})
		return a.renderLogin(c.Status(statusFor(err)), client, nil, LoginErrorMessage(err, 0))
	}
	defer client.Throttle.End()

	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.renderLogin(c.Status(fiber.StatusBadRequest), client, payload, "Failed to parse form")
	}

	if err := payload.Validate(); err != nil {
		return a.renderLogin(
			c.Status(fiber.StatusUnprocessableEntity),
			client,
			payload,
			FirstValidationMessage(err, "email", "password"),
		)
	}

	if a.Debug {
		a.Logger.Debug("login payload", "payload", print.MaybePrettyJSON(LoginRequest{Email: payload.Email, Password: "********"}))
	}

	ctx, cancel := a.requestContext(c)
	defer cancel()

	res, err := client.Auth.SignIn(ctx, payload.Email, payload.Password)
	a.Metrics.signIn(err)

	if err != nil {
		remaining := client.Throttle.Remaining()
		if CountsAsAttempt(err) {
			remaining = client.Throttle.Fail()
		}
		a.Logger.Warn("sign in failed", "client_id", client.ID, "kind", KindOf(err), "error", err)
		a.record(c, client, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Email:     payload.Email,
			Kind:      KindOf(err),
			Metadata:  map[string]any{"remaining": remaining},
		})
		return a.renderLogin(c.Status(statusFor(err)), client, payload, LoginErrorMessage(err, remaining))
	}

	client.Throttle.Succeed()

	event := ActivityEvent{EventType: ActivityEventLoginSuccess, Email: payload.Email}
	if u := res.User; u != nil {
		event.UserID = u.ID
	}
	a.record(c, client, event)

	return c.Redirect(a.Routes.Dashboard, fiber.StatusSeeOther)
}

func (a *AuthController) renderLogin(c *fiber.Ctx, client *Client, payload *LoginRequest, message string) error {
	attempts, max := client.Throttle.Attempts(), client.Throttle.Max()

	record := fiber.Map{"email": ""}
	if payload != nil {
		record["email"] = payload.Email
	}

	return c.Render(a.Views.Login, ViewContext(c, fiber.Map{
		"record":        record,
		"error":         message,
		"attempts":      attempts,
		"max_attempts":  max,
		"show_attempts": attempts > 0 && attempts < max,
		"disabled":      attempts >= max,
	}))
}

// LogOut ends the client session and sends the user to the login form. The
// local session is cleared even when the store call fails.
func (a *AuthController) LogOut(c *fiber.Ctx) error {
	client, err := ClientFromCtx(c)
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(c)
	defer cancel()

	userID := ""
	if u := client.Auth.State().User(); u != nil {
		userID = u.ID
	}

	if err := client.Auth.SignOut(ctx); err != nil {
		a.Logger.Warn("sign out", "client_id", client.ID, "error", err)
	}
	a.Metrics.signOut()
	a.record(c, client, ActivityEvent{EventType: ActivityEventSignOut, UserID: userID})

	return c.Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Register, ViewContext(c, fiber.Map{
		"record": RegistrationCreatePayload{},
		"error":  "",
	}))
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"-"`
	ConfirmPassword string `form:"confirm_password" json:"-"`
}

// Validate checks the passwords match, then their length, then the email.
// The first failure is returned.
func (r RegistrationCreatePayload) Validate() error {
	if err := validation.Validate(r.ConfirmPassword, validation.By(ValidateStringEquals(r.Password))); err != nil {
		return NewValidationError(MsgPasswordMismatch, err)
	}

	if err := validation.Validate(r.Password,
		validation.Required.Error(MsgPasswordTooShort),
		validation.Length(MinPasswordLength, 0).Error(MsgPasswordTooShort),
	); err != nil {
		return NewValidationError(MsgPasswordTooShort, err)
	}

	if err := validation.Validate(r.Email,
		validation.Required.Error(MsgInvalidEmail),
		is.Email.Error(MsgInvalidEmail),
	); err != nil {
		return NewValidationError(MsgInvalidEmail, err)
	}

	return nil
}

// RegistrationCreate signs a new account up. The register form of a client
// takes one submit at a time.
func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	client, err := ClientFromCtx(c)
	if err != nil {
		return err
	}

	payload := new(RegistrationCreatePayload)
	if err := client.Signup.Acquire(); err != nil {
		a.Metrics.throttled(err)
		return a.renderRegister(c.Status(statusFor(err)), payload, RegisterErrorMessage(err))
	}
	defer client.Signup.Release()

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return a.renderRegister(c.Status(fiber.StatusBadRequest), payload, "Failed to parse form")
	}

	if err := payload.Validate(); err != nil {
		return a.renderRegister(c.Status(fiber.StatusUnprocessableEntity), payload, ErrorMessage(err))
	}

	if a.Debug {
		a.Logger.Debug("register payload", "payload", print.MaybePrettyJSON(payload))
	}

	ctx, cancel := a.requestContext(c)
	defer cancel()

	res, err := client.Auth.SignUp(ctx, payload.Email, payload.Password)
	a.Metrics.signUp(err)

	if err != nil {
		a.Logger.Warn("sign up failed", "client_id", client.ID, "kind", KindOf(err), "error", err)
		a.record(c, client, ActivityEvent{
			EventType: ActivityEventSignUpFailure,
			Email:     payload.Email,
			Kind:      KindOf(err),
		})
		return a.renderRegister(c.Status(statusFor(err)), payload, RegisterErrorMessage(err))
	}

	event := ActivityEvent{EventType: ActivityEventSignUpSuccess, Email: payload.Email}
	if res != nil && res.User != nil {
		event.UserID = res.User.ID
	}
	a.record(c, client, event)

	seconds := int(a.RedirectDelay.Seconds())
	c.Set("Refresh", fmt.Sprintf("%d; url=%s", seconds, a.Routes.Login))

	return c.Render(a.Views.Register, ViewContext(c, fiber.Map{
		"record":         RegistrationCreatePayload{Email: payload.Email},
		"success":        true,
		"message":        MsgRegistered,
		"confirm":        MsgConfirmEmail,
		"redirect_to":    a.Routes.Login,
		"redirect_after": seconds,
	}))
}

func (a *AuthController) renderRegister(c *fiber.Ctx, payload *RegistrationCreatePayload, message string) error {
	return c.Render(a.Views.Register, ViewContext(c, fiber.Map{
		"record": RegistrationCreatePayload{Email: payload.Email},
		"error":  message,
	}))
}

func (a *AuthController) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), a.Timeout)
}

func (a *AuthController) record(c *fiber.Ctx, client *Client, event ActivityEvent) {
	event.ClientID = client.ID
	recordActivity(c.UserContext(), a.Activity, a.Logger, event)
}

func statusFor(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return fiber.StatusUnauthorized
	case KindValidation:
		return fiber.StatusUnprocessableEntity
	case KindThrottled:
		if IsTooManyAttempts(err) {
			return fiber.StatusTooManyRequests
		}
		return fiber.StatusConflict
	case KindConfiguration, KindTransient:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusServiceUnavailable
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo field errors to field -> message
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	errs, ok := err.(validation.Errors)
	if !ok {
		if err != nil {
			out["form"] = err.Error()
		}
		return out
	}
	for field, fieldErr := range errs {
		if fieldErr != nil {
			out[field] = fieldErr.Error()
		}
	}
	return out
}

// FirstValidationMessage returns the message of the first failing field in
// order, falling back to the alphabetically first one.
func FirstValidationMessage(err error, order ...string) string {
	fields := FormatValidationErrorToMap(err)
	for _, name := range order {
		if msg, ok := fields[name]; ok {
			return msg
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return strings.TrimSpace(fields[keys[0]])
}
