package challenge

// Stable challenge keys. Detectors and seeded records join on these
// strings, never on object identity.
const (
	KeyScoreBoard          = "scoreBoard"
	KeyAdminSection        = "adminSection"
	KeyTokenSale           = "tokenSale"
	KeyPrivacyPolicy       = "privacyPolicy"
	KeyExtraLanguage       = "extraLanguage"
	KeySecurityPolicy      = "securityPolicy"
	KeyMissingEncoding     = "missingEncoding"
	KeyAccessLogDisclosure = "accessLogDisclosure"
	KeyRetrieveBlueprint   = "retrieveBlueprint"

	KeyNoSQLCommand  = "noSqlCommand"
	KeyCaptchaBypass = "captchaBypass"

	KeyJWTUnsigned = "jwtUnsigned"
	KeyJWTForged   = "jwtForged"

	KeyWeirdCrypto         = "weirdCrypto"
	KeyKnownVulnComponent  = "knownVulnerableComponent"
	KeyTyposquattingNpm    = "typosquattingNpm"
	KeyTyposquattingClient = "typosquattingClient"
	KeyHiddenImage         = "hiddenImage"
	KeySupplyChainAttack   = "supplyChainAttack"
	KeyPastebinLeak        = "pastebinDataLeak"

	KeyChangeProduct = "changeProduct"

	KeyForgedFeedback   = "forgedFeedback"
	KeyZeroStars        = "zeroStars"
	KeyFiveStarFeedback = "fiveStarFeedback"
	KeyRegisterAdmin    = "registerAdmin"
	KeyPasswordRepeat   = "passwordRepeat"
	KeyBasketAccess     = "basketAccess"
	KeyCSRF             = "csrf"
	KeyHTTPHeaderXSS    = "httpHeaderXss"
	KeyErrorHandling    = "errorHandling"
)
