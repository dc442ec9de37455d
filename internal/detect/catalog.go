package detect

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// Catalog dependencies. Store interfaces are satisfied by
// *database.Store.
type Deps struct {
	Scanner  ContentScanner
	Products ProductReader
	Feedback FeedbackCounter
	Verifier TokenVerifier
	Log      *logger.Logger
	Clock    Clock
	Cfg      config.ChallengesConfig

	// TamperProduct is the catalog record watched by the
	// state-correlation detector, and TamperOriginalURL the marker its
	// pristine description carries.
	TamperProduct     string
	TamperOriginalURL string

	// BlueprintFile is the hidden asset behind the blueprint
	// retrieval challenge.
	BlueprintFile string

	// PastebinKeywords must all appear in one stored comment to solve
	// the data-leak challenge.
	PastebinKeywords []string
}

// FeedbackCounter counts stored feedback rows by rating. Satisfied by
// *database.Store.
type FeedbackCounter interface {
	CountFeedbackWithRating(ctx context.Context, rating int) (int, error)
}

var (
	decoyUnsigned = regexp.MustCompile(`jwtn3d@`)
	decoyForged   = regexp.MustCompile(`rsa_lord@`)

	accessLogPattern = regexp.MustCompile(`access\.log[0-9-]*$`)
	basketPathRE     = regexp.MustCompile(`/rest/basket/([0-9]+)$`)
)

// RegisterDefaults registers the full detector set. Registration order
// is the only cross-detector ordering guarantee the dispatcher gives.
func RegisterDefaults(d *Dispatcher, deps Deps) {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}

	// Access-control targets, matched on the decoded path.
	d.Register(NewURLSuffix(challenge.KeyScoreBoard, "/1px.png", false))
	d.Register(NewURLSuffix(challenge.KeyAdminSection, "/19px.png", false))
	d.Register(NewURLSuffix(challenge.KeyTokenSale, "/56px.png", false))
	d.Register(NewURLSuffix(challenge.KeyPrivacyPolicy, "/81px.png", false))
	d.Register(NewURLSuffix(challenge.KeyExtraLanguage, "/tlh_AA.json", false))
	d.Register(NewURLSuffix(challenge.KeySecurityPolicy, "/security.txt", false))
	d.Register(NewURLSuffix(challenge.KeyMissingEncoding, "😼-#zatschi-#whoneedsfourlegs-1572600969477.jpg", true))
	d.Register(NewURLPattern(challenge.KeyAccessLogDisclosure, accessLogPattern))
	if deps.BlueprintFile != "" {
		d.Register(NewURLSuffix(challenge.KeyRetrieveBlueprint, deps.BlueprintFile, false))
	}

	// Automated probing of the captcha-protected feedback endpoint.
	d.Register(NewRateBurst(challenge.KeyCaptchaBypass, PreRoute,
		"POST", "/api/Feedbacks", 10, 10*time.Second, clock))

	// Algorithm-confusion artifacts.
	d.Register(NewCredentialForgery(challenge.KeyJWTUnsigned, deps.Verifier, "none", decoyUnsigned))
	d.Register(NewCredentialForgery(challenge.KeyJWTForged, deps.Verifier, "HS256", decoyForged))

	// Persisted-content scans over feedback comments and complaint
	// messages.
	d.Register(NewContentScan(challenge.KeyWeirdCrypto, deps.Scanner, deps.Log, [][]string{
		{"z85"}, {"base85"}, {"hashids"}, {"md5"}, {"base64"},
	}))
	d.Register(NewContentScan(challenge.KeyKnownVulnComponent, deps.Scanner, deps.Log, [][]string{
		{"sanitize-html", "1.4.2"},
		{"express-jwt", "0.1.3"},
	}))
	d.Register(NewContentScan(challenge.KeyTyposquattingNpm, deps.Scanner, deps.Log, [][]string{
		{"epilogue-js"},
	}))
	d.Register(NewContentScan(challenge.KeyTyposquattingClient, deps.Scanner, deps.Log, [][]string{
		{"anuglar2-qrcode"},
	}))
	d.Register(NewContentScan(challenge.KeyHiddenImage, deps.Scanner, deps.Log, [][]string{
		{"pickle rick"},
	}))
	d.Register(NewContentScan(challenge.KeySupplyChainAttack, deps.Scanner, deps.Log, [][]string{
		{"eslint-scope/issues/39"},
		{"npm:eslint-scope:20180712"},
	}))
	if len(deps.PastebinKeywords) > 0 {
		d.Register(NewContentScan(challenge.KeyPastebinLeak, deps.Scanner, deps.Log, [][]string{
			deps.PastebinKeywords,
		}))
	}

	// Out-of-band catalog tampering.
	if deps.TamperProduct != "" {
		d.Register(NewProductTampering(challenge.KeyChangeProduct, deps.Products, deps.Log,
			deps.TamperProduct, deps.TamperOriginalURL, deps.Cfg.OverwriteURL))
	}

	// Request-shape predicates.
	d.Register(NewPredicate(challenge.KeyRegisterAdmin, PreRoute, func(ctx context.Context, ev Event) bool {
		req := ev.Request
		if req == nil || req.Method != "POST" || !strings.HasSuffix(req.Path, "/api/Users") {
			return false
		}
		role, _ := req.Body["role"].(string)
		return role == "admin"
	}))

	d.Register(NewPredicate(challenge.KeyPasswordRepeat, PreRoute, func(ctx context.Context, ev Event) bool {
		req := ev.Request
		if req == nil || req.Method != "POST" || !strings.HasSuffix(req.Path, "/api/Users") {
			return false
		}
		password, hasPassword := req.Body["password"].(string)
		repeat, hasRepeat := req.Body["passwordRepeat"].(string)
		return hasPassword && hasRepeat && password != repeat
	}))

	d.Register(NewPredicate(challenge.KeyBasketAccess, PostAuth, func(ctx context.Context, ev Event) bool {
		req := ev.Request
		if req == nil || req.Method != "GET" || req.Identity == nil {
			return false
		}
		m := basketPathRE.FindStringSubmatch(req.Path)
		if m == nil {
			return false
		}
		requested, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return false
		}
		return req.Identity.BasketID != 0 && req.Identity.BasketID != requested
	}))

	// Forged feedback: the submitted owner id differs from the
	// authenticated caller.
	d.Register(NewPredicate(challenge.KeyForgedFeedback, PostMutation, func(ctx context.Context, ev Event) bool {
		mut := ev.Mutation
		if mut == nil || mut.Entity != "feedback" {
			return false
		}
		claimed, ok := mut.Fields["claimedUserId"].(int64)
		if !ok {
			return false
		}
		var actual int64
		if mut.Request != nil && mut.Request.Identity != nil {
			actual = mut.Request.Identity.UserID
		}
		return claimed != actual
	}))

	d.Register(NewPredicate(challenge.KeyZeroStars, PostMutation, func(ctx context.Context, ev Event) bool {
		mut := ev.Mutation
		if mut == nil || mut.Entity != "feedback" {
			return false
		}
		rating, ok := mut.Fields["rating"].(int)
		return ok && rating == 0
	}))

	// Wiping out the five-star reviews: checked whenever the feedback
	// table changes, solved once no five-star row remains.
	if deps.Feedback != nil {
		d.Register(NewPredicate(challenge.KeyFiveStarFeedback, PostMutation, func(ctx context.Context, ev Event) bool {
			mut := ev.Mutation
			if mut == nil || mut.Entity != "feedback" {
				return false
			}
			count, err := deps.Feedback.CountFeedbackWithRating(ctx, 5)
			if err != nil {
				deps.Log.LogError(ctx, err, "detector.feedback_count")
				return false
			}
			return count == 0
		}))
	}

	// Error surfacing: a handler errored yet the response claims
	// success, or leaks an unexpected failure status.
	d.Register(NewPredicate(challenge.KeyErrorHandling, PostResponse, func(ctx context.Context, ev Event) bool {
		resp := ev.Response
		if resp == nil || !resp.Errored {
			return false
		}
		return resp.Status == 200 || resp.Status > 401
	}))
}
