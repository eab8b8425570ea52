package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/MrWong99/digigov-voice/internal/voice/form"
)

// Host is the application the assistant drives.
type Host interface {
	// Navigate moves the application to path. Fire-and-forget.
	Navigate(path string)

	// CurrentPath returns the application's current location.
	CurrentPath() string

	// Document returns the page currently shown, or nil.
	Document() form.Document
}

// BackNavigator is implemented by hosts with a history stack.
type BackNavigator interface {
	Back()
}

// LogoutHandler is implemented by hosts that can end the user's session.
type LogoutHandler interface {
	Logout()
}

// ChatbotToggler is implemented by hosts with a chat assistant widget.
type ChatbotToggler interface {
	ToggleChatbot()
}

// Controls lets commands steer the assistant that runs them.
type Controls interface {
	// Disable turns voice control off. It must not block on the command
	// that called it.
	Disable()
	SetMuted(muted bool)
}

// Route is a navigable page of the host application.
type Route struct {
	Path string `yaml:"path" toml:"path"`
	// Title is how the page is announced, e.g. "dashboard".
	Title string `yaml:"title" toml:"title"`
	// Aliases are the spoken names that navigate here. Title is implied.
	Aliases []string `yaml:"aliases" toml:"aliases"`
}

// DefaultRoutes returns the citizen portal's pages.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Title: "home page", Aliases: []string{"home", "home page", "homepage"}},
		{Path: "/dashboard", Title: "dashboard", Aliases: []string{"dashboard", "my dashboard"}},
		{Path: "/schemes", Title: "government schemes", Aliases: []string{"schemes", "government schemes", "scheme"}},
		{Path: "/bills", Title: "bill payments", Aliases: []string{"bills", "bill payments", "pay bills", "bill payment"}},
		{Path: "/health", Title: "health services", Aliases: []string{"health", "health services"}},
		{Path: "/education", Title: "education services", Aliases: []string{"education", "education services"}},
		{Path: "/feedback", Title: "feedback", Aliases: []string{"feedback", "feedback form"}},
		{Path: "/profile", Title: "profile", Aliases: []string{"profile", "my profile"}},
		{Path: "/admin", Title: "admin dashboard", Aliases: []string{"admin", "admin dashboard", "admin panel"}},
	}
}

// BuiltinConfig configures [Builtin].
type BuiltinConfig struct {
	Host     Host
	Controls Controls
	Routes   []Route
	Filler   *form.Filler
}

// Builtin returns the portal grammar in priority order: control, action,
// form, navigation. Commands for optional host capabilities are included
// only when Host implements them.
func Builtin(cfg BuiltinConfig) []Command {
	if cfg.Filler == nil {
		cfg.Filler = form.NewFiller(nil)
	}
	b := &builder{cfg: cfg}

	var cmds []Command
	cmds = append(cmds, b.control()...)
	cmds = append(cmds, b.actions()...)
	cmds = append(cmds, b.forms()...)
	cmds = append(cmds, b.navigation()...)
	return cmds
}

type builder struct {
	cfg BuiltinConfig
}

func pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(?:` + expr + `)$`)
}

func success(msg string) Result { return Result{Success: true, Message: msg, ShouldSpeak: true} }

func failure(msg string) Result { return Result{Success: false, Message: msg, ShouldSpeak: true} }

// ─── Control ─────────────────────────────────────────────────────────────────

func (b *builder) control() []Command {
	cmds := []Command{
		{
			Name:        "help",
			Pattern:     pattern(`help|help me|what can i say|what can you do|show commands`),
			Description: "List a few things you can say",
			Examples:    []string{"help", "what can i say"},
			Category:    CategoryControl,
			Action: func(context.Context, Context) (Result, error) {
				return success(`You can say things like "go to dashboard", "fill my name as" followed by your name, "submit form", or "stop listening".`), nil
			},
		},
		{
			Name:        "where-am-i",
			Pattern:     pattern(`(?:what|which) page am i on|where am i`),
			Description: "Announce the current page",
			Examples:    []string{"what page am i on", "where am i"},
			Category:    CategoryControl,
			Action: func(_ context.Context, c Context) (Result, error) {
				return success(fmt.Sprintf("You are on the %s.", b.titleFor(c.CurrentPath))), nil
			},
		},
	}

	if b.cfg.Controls == nil {
		return cmds
	}
	ctl := b.cfg.Controls
	return append(cmds,
		Command{
			Name:        "stop-listening",
			Pattern:     pattern(`stop listening|turn off voice(?: control)?|disable voice(?: control)?|goodbye`),
			Description: "Turn voice control off",
			Examples:    []string{"stop listening", "turn off voice control"},
			Category:    CategoryControl,
			Action: func(context.Context, Context) (Result, error) {
				ctl.Disable()
				return Result{Success: true, Message: "Voice control turned off."}, nil
			},
		},
		Command{
			Name:        "mute",
			Pattern:     pattern(`mute|be quiet|stop talking`),
			Description: "Stop spoken feedback",
			Examples:    []string{"mute", "be quiet"},
			Category:    CategoryControl,
			Action: func(context.Context, Context) (Result, error) {
				ctl.SetMuted(true)
				return Result{Success: true, Message: "Muted."}, nil
			},
		},
		Command{
			Name:        "unmute",
			Pattern:     pattern(`unmute|speak again|start talking`),
			Description: "Resume spoken feedback",
			Examples:    []string{"unmute"},
			Category:    CategoryControl,
			Action: func(context.Context, Context) (Result, error) {
				ctl.SetMuted(false)
				return success("Voice feedback is back on."), nil
			},
		},
	)
}

func (b *builder) titleFor(path string) string {
	for _, r := range b.cfg.Routes {
		if r.Path == path {
			return routeTitle(r)
		}
	}
	if path == "" {
		return "current page"
	}
	return strings.Trim(path, "/") + " page"
}

func routeTitle(r Route) string {
	if r.Title != "" {
		return r.Title
	}
	if len(r.Aliases) > 0 {
		return r.Aliases[0]
	}
	return r.Path
}

// ─── Actions ─────────────────────────────────────────────────────────────────

func (b *builder) actions() []Command {
	filler := b.cfg.Filler
	cmds := []Command{
		{
			Name:        "submit",
			Pattern:     pattern(`(?:submit|send)(?: (?:the |this )?form)?|pay now|confirm`),
			Description: "Submit the current form",
			Examples:    []string{"submit form", "pay now"},
			Category:    CategoryAction,
			Action: func(_ context.Context, c Context) (Result, error) {
				if c.Document == nil {
					return failure("There is no form on this page."), nil
				}
				if err := filler.Press(c.Document, "submit"); err != nil {
					return Result{}, err
				}
				return success("Form submitted."), nil
			},
		},
		{
			Name:        "cancel",
			Pattern:     pattern(`cancel|close (?:the )?(?:form|dialog)`),
			Description: "Cancel the current form",
			Examples:    []string{"cancel", "close the form"},
			Category:    CategoryAction,
			Action: func(_ context.Context, c Context) (Result, error) {
				if c.Document == nil {
					return failure("There is nothing to cancel on this page."), nil
				}
				if err := filler.Press(c.Document, "cancel"); err != nil {
					return Result{}, err
				}
				return success("Cancelled."), nil
			},
		},
	}

	if h, ok := b.cfg.Host.(LogoutHandler); ok {
		cmds = append(cmds, Command{
			Name:        "logout",
			Pattern:     pattern(`log ?out|sign ?out|logout|signout`),
			Description: "Sign out of the portal",
			Examples:    []string{"log out", "sign out"},
			Category:    CategoryAction,
			Action: func(context.Context, Context) (Result, error) {
				h.Logout()
				return Result{Success: true, Message: "Logging you out.", ShouldSpeak: true}, nil
			},
		})
	}
	if h, ok := b.cfg.Host.(ChatbotToggler); ok {
		cmds = append(cmds, Command{
			Name:        "chatbot",
			Pattern:     pattern(`(?:open|close|show|hide|toggle) (?:the )?(?:chat ?bot|chat assistant|chat|assistant chat)`),
			Description: "Open or close the chat assistant",
			Examples:    []string{"open chat assistant", "close chatbot"},
			Category:    CategoryAction,
			Action: func(context.Context, Context) (Result, error) {
				h.ToggleChatbot()
				return Result{Success: true, Message: "Toggling the chat assistant.", ShouldSpeak: true}, nil
			},
		})
	}
	return cmds
}

// ─── Forms ───────────────────────────────────────────────────────────────────

// formField is a fillable logical field and how spoken values are cleaned.
type formField struct {
	field     string
	spoken    string
	normalize func(string) string
	empty     string
}

var formFields = []formField{
	{field: "name", spoken: `(?:full )?name`, normalize: normalizeName},
	{field: "email", spoken: `e-?mail(?: address)?`, normalize: normalizeEmail},
	{field: "phone", spoken: `(?:phone|mobile)(?: number)?`, normalize: digitsOnly, empty: "I didn't catch a phone number."},
	{field: "amount", spoken: `amount`, normalize: normalizeAmount, empty: "I didn't catch an amount."},
	{field: "address", spoken: `address`, normalize: normalizeName},
}

func fillPattern(spoken string) *regexp.Regexp {
	return pattern(`(?:(?:fill|enter|set|type|put)(?: in)? (?:my |the )?` + spoken +
		` (?:as|to|is|with)|my ` + spoken + ` is) (.+)`)
}

func (b *builder) forms() []Command {
	filler := b.cfg.Filler
	var cmds []Command

	for _, ff := range formFields {
		cmds = append(cmds, Command{
			Name:        "fill-" + ff.field,
			Pattern:     fillPattern(ff.spoken),
			Description: "Fill the " + ff.field + " field",
			Examples:    []string{"fill my " + ff.field + " as ..."},
			Category:    CategoryForm,
			Action: func(_ context.Context, c Context) (Result, error) {
				value := ff.normalize(c.Arg(1))
				if value == "" {
					msg := ff.empty
					if msg == "" {
						msg = "I didn't catch a value for the " + ff.field + " field."
					}
					return failure(msg), nil
				}
				return fillField(filler, c, ff.field, value)
			},
		})
	}

	cmds = append(cmds,
		Command{
			Name:        "search",
			Pattern:     pattern(`(?:search(?: for)?|look for|find) (.+)`),
			Description: "Type into the search box",
			Examples:    []string{"search for scholarships"},
			Category:    CategoryForm,
			Action: func(_ context.Context, c Context) (Result, error) {
				return fillField(filler, c, "search", normalizeName(c.Arg(1)))
			},
		},
		Command{
			Name:        "clear-field",
			Pattern:     pattern(`(?:clear|erase|empty) (?:the |my )?(name|email|phone|mobile|amount|address|search)(?: field| number| box)?`),
			Description: "Clear a form field",
			Examples:    []string{"clear the email field"},
			Category:    CategoryForm,
			Action: func(_ context.Context, c Context) (Result, error) {
				field := strings.ToLower(c.Arg(1))
				if field == "mobile" {
					field = "phone"
				}
				if c.Document == nil {
					return failure("There is no form on this page."), nil
				}
				if err := filler.Fill(c.Document, field, ""); err != nil {
					return Result{}, err
				}
				return success("Cleared the " + field + " field."), nil
			},
		},
	)
	return cmds
}

func fillField(filler *form.Filler, c Context, field, value string) (Result, error) {
	if c.Document == nil {
		return failure("There is no form on this page."), nil
	}
	if err := filler.Fill(c.Document, field, value); err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Set %s to %s.", field, value)), nil
}

func normalizeName(s string) string {
	return strings.TrimRight(strings.Join(strings.Fields(s), " "), ".")
}

var (
	spokenAt  = regexp.MustCompile(`(?i)\s+at\s+`)
	spokenDot = regexp.MustCompile(`(?i)\s+dot\s+`)
)

func normalizeEmail(s string) string {
	s = spokenAt.ReplaceAllString(" "+strings.TrimSpace(s)+" ", "@")
	s = spokenDot.ReplaceAllString(s, ".")
	s = strings.Join(strings.Fields(s), "")
	return strings.TrimRight(strings.ToLower(s), ".")
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func normalizeAmount(s string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, s)
	return strings.Trim(out, ".")
}

// ─── Navigation ──────────────────────────────────────────────────────────────

func (b *builder) navigation() []Command {
	var cmds []Command
	for _, r := range b.cfg.Routes {
		aliases := append([]string{r.Title}, r.Aliases...)
		var alts []string
		seen := make(map[string]bool)
		for _, a := range aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(a), " ", `\s+`))
		}
		if len(alts) == 0 {
			continue
		}
		title := routeTitle(r)
		path := r.Path
		cmds = append(cmds, Command{
			Name:        "navigate-" + strings.ReplaceAll(title, " ", "-"),
			Pattern:     pattern(`(?:go to|open|navigate to|show me|take me to)\s+(?:the\s+)?(?:` + strings.Join(alts, "|") + `)(?:\s+page)?`),
			Description: "Open the " + title,
			Examples:    []string{"go to " + title},
			Category:    CategoryNavigation,
			Action: func(_ context.Context, c Context) (Result, error) {
				c.Navigate(path)
				return success("Opening the " + title + "."), nil
			},
		})
	}

	if h, ok := b.cfg.Host.(BackNavigator); ok {
		cmds = append(cmds, Command{
			Name:        "go-back",
			Pattern:     pattern(`go back|back|previous page`),
			Description: "Return to the previous page",
			Examples:    []string{"go back"},
			Category:    CategoryNavigation,
			Action: func(context.Context, Context) (Result, error) {
				h.Back()
				return Result{Success: true, Message: "Going back.", ShouldSpeak: true}, nil
			},
		})
	}
	return cmds
}
