package config

type App struct {
	Port           string `env:"APP_PORT" default:"8080"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	JWTSecret      string `env:"JWT_SECRET,required"`
	StripeAPIKey   string `env:"STRIPE_API_KEY,required"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHAT_ID"`
	SiteURL        string `env:"SITE_URL" default:"http://127.0.0.1:8080"`
	SweepSchedule  string `env:"OVERDUE_SWEEP_SCHEDULE" default:"0 9 * * *"`
	Env            string `env:"APP_ENV" default:"dev"`
}
