package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"jorra-tryon/internal/app"
	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/config"
	"jorra-tryon/internal/logger"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/progress"
	"jorra-tryon/internal/services"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const usage = `Usage: tryonctl [-api URL] [-db PATH] [-v] <command> [flags]

Commands:
  login, signup   sign in or create an account
  logout          forget the stored token
  whoami          show the signed-in user and remaining try-ons
  hairstyles      list the catalog
  try-on          apply a hairstyle to a photo
  bonus           claim the social share bonus
  share           create a share link for a generation
  admin-list      list try-on increase requests
  admin-approve   approve a request
  admin-deny      deny a request
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", apperrors.UserMessage(err, err.Error()))
		os.Exit(1)
	}
}

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"login":         cmdLogin,
	"signup":        cmdSignup,
	"logout":        cmdLogout,
	"whoami":        cmdWhoami,
	"hairstyles":    cmdHairstyles,
	"try-on":        cmdTryOn,
	"bonus":         cmdBonus,
	"share":         cmdShare,
	"admin-list":    cmdAdminList,
	"admin-approve": cmdAdminApprove,
	"admin-deny":    cmdAdminDeny,
}

type cli struct {
	app    *app.App
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tryonctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	apiURL := fs.String("api", "", "Try-on backend base URL (overrides API_BASE_URL)")
	dbPath := fs.String("db", "", "Credential database path (overrides DB_URL)")
	verbose := fs.Bool("v", false, "Log requests to stderr")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("missing command")
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg := config.LoadConfig()
	if *apiURL != "" {
		cfg.APIBaseURL = strings.TrimRight(*apiURL, "/")
	}
	if *dbPath != "" {
		cfg.DBDriver = "sqlite"
		cfg.DBUrl = *dbPath
	}

	log := logger.Nop()
	if *verbose {
		log = logger.InitLogger().Level(zerolog.DebugLevel)
	}

	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	a, err := app.New(cfg, c.renderProgress, log)
	if err != nil {
		return err
	}
	defer a.Close()
	c.app = a

	ctx := context.Background()
	switch name {
	case "login", "signup", "logout":
	default:
		// restore the stored sign-in, as the UI does on page load
		a.Sessions.Refresh(ctx)
	}
	return cmd(ctx, c, fs.Args()[1:])
}

func (c *cli) renderProgress(s progress.Snapshot) {
	label := "Generating"
	if s.Phase == progress.PhaseFinishing {
		label = "Finishing up"
	}
	fmt.Fprintf(c.stderr, "\r%s... %3d%%", label, s.Percent)
}

func newFlags(name string, c *cli) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	return c.authenticate(ctx, "login", args, c.app.Sessions.Login)
}

func cmdSignup(ctx context.Context, c *cli, args []string) error {
	return c.authenticate(ctx, "signup", args, c.app.Sessions.Signup)
}

func (c *cli) authenticate(ctx context.Context, name string, args []string, fn func(context.Context, string, string) (*services.LoginResult, error)) error {
	fs := newFlags(name, c)
	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fmt.Fprintf(c.stdout, "Usage: tryonctl %s -user <username> [-password <password>]\n", name)
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(c.stdout, "Password: ")
		var err error
		password, err = readPassword(c.stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(c.stdout)
	}

	result, err := fn(ctx, *username, password)
	if err != nil {
		return err
	}

	// the process exits right after, so wait for the profile backfill here
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	session := result.Session
	if full, err := result.Backfill.Wait(waitCtx); err == nil && full != nil {
		session = full
	}

	fmt.Fprintf(c.stdout, "Signed in as %s (%d try-ons left)\n", session.Username, session.CreditsRemaining)
	return nil
}

func cmdLogout(ctx context.Context, c *cli, args []string) error {
	if err := c.app.Sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Signed out")
	return nil
}

func cmdWhoami(ctx context.Context, c *cli, args []string) error {
	session := c.app.Sessions.Current()
	if session == nil {
		return apperrors.Auth("Not signed in. Run tryonctl login first.")
	}
	fmt.Fprintf(c.stdout, "%s (id %d): %d try-ons left\n", session.Username, session.UserID, session.CreditsRemaining)
	return nil
}

func cmdHairstyles(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("hairstyles", c)
	search := fs.String("search", "", "Search text")
	category := fs.String("category", "", "Category name")
	limit := fs.Int("limit", 10, "Page size")
	offset := fs.Int("offset", 0, "Page offset")
	partner := fs.Bool("partner", false, "Include the partner catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page := c.app.Catalog.ListHairstyles(ctx, models.HairstyleFilter{
		Search:   *search,
		Category: *category,
		Limit:    *limit,
		Offset:   *offset,
	})
	items := page.Items
	if *partner {
		items = services.MergeCatalogs(items, c.app.Catalog.ListSecondaryCatalog(ctx).Items)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSOURCE")
	for _, h := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ID, h.Name, h.Category, h.Source)
	}
	return tw.Flush()
}

func cmdTryOn(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("try-on", c)
	hairstyleID := fs.String("hairstyle", "", "Catalog hairstyle ID")
	reference := fs.String("reference", "", "Reference hairstyle photo, instead of -hairstyle")
	photoPath := fs.String("photo", "", "Selfie to apply the hairstyle to")
	out := fs.String("out", "tryon-result.png", "Where to write the result")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var photo []byte
	if *photoPath != "" {
		data, err := os.ReadFile(*photoPath)
		if err != nil {
			return fmt.Errorf("failed to read photo: %w", err)
		}
		photo = data
	}

	var (
		result *models.GenerationResult
		err    error
	)
	if *reference != "" {
		ref, rerr := os.ReadFile(*reference)
		if rerr != nil {
			return fmt.Errorf("failed to read reference photo: %w", rerr)
		}
		result, err = c.app.TryOn.GenerateWithUpload(ctx, photo, filepath.Base(*photoPath), ref, filepath.Base(*reference))
	} else {
		result, err = c.app.TryOn.Generate(ctx, services.GenerateInput{
			HairstyleID: models.FlexibleID(*hairstyleID),
			Photo:       photo,
			Filename:    filepath.Base(*photoPath),
		})
	}
	fmt.Fprintln(c.stderr)
	if err != nil {
		return err
	}
	if result.TransferKey != "" {
		c.app.TryOn.TakeResult(result.TransferKey)
	}

	if err := os.WriteFile(*out, result.Image, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	fmt.Fprintf(c.stdout, "Saved %s (%s) in %s\n", *out, result.ContentType, result.CompletedAt.Sub(result.IssuedAt).Round(time.Millisecond))
	if session := c.app.Sessions.Current(); session != nil {
		fmt.Fprintf(c.stdout, "%d try-ons left\n", session.CreditsRemaining)
	}
	return nil
}

func cmdBonus(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("bonus", c)
	postURL := fs.String("url", "", "Link to your post tagged "+services.CampaignTag)
	if err := fs.Parse(args); err != nil {
		return err
	}

	claim, err := c.app.Shares.ClaimBonus(ctx, *postURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Bonus claimed: +%d try-ons\n", claim.CreditsAdded)
	return nil
}

func cmdShare(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("share", c)
	generationID := fs.Int("generation", 0, "Generation ID")
	platform := fs.String("platform", "twitter", "Target platform")
	if err := fs.Parse(args); err != nil {
		return err
	}

	link, err := c.app.Shares.RequestShareLink(ctx, *generationID, *platform)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, link.ShareURL)
	return nil
}

func cmdAdminList(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("admin-list", c)
	status := fs.String("status", string(models.RequestStatusPending), "pending, approved, denied, or empty for all")
	limit := fs.Int("limit", 50, "Page size")
	offset := fs.Int("offset", 0, "Page offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := c.app.Admin.ListRequests(ctx, models.RequestStatus(*status), *limit, *offset)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tAMOUNT\tSTATUS\tREASON")
	for _, r := range page.Requests {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Username, r.RequestedAmount, r.Status, r.Reason)
	}
	return tw.Flush()
}

func requestID(name string, c *cli, args []string) (int, error) {
	fs := newFlags(name, c)
	id := fs.Int("id", 0, "Request ID")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *id <= 0 {
		return 0, fmt.Errorf("missing required flags: id")
	}
	return *id, nil
}

func cmdAdminApprove(ctx context.Context, c *cli, args []string) error {
	id, err := requestID("admin-approve", c, args)
	if err != nil {
		return err
	}
	result, err := c.app.Admin.Approve(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Approved request %d, user now has %d try-ons\n", id, result.NewCreditTotal)
	return nil
}

func cmdAdminDeny(ctx context.Context, c *cli, args []string) error {
	id, err := requestID("admin-deny", c, args)
	if err != nil {
		return err
	}
	if _, err := c.app.Admin.Deny(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Denied request %d\n", id)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
