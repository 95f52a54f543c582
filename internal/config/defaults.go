package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			Timezone:              "Asia/Thimphu",
			MaxConcurrentMessages: 8,
			QueueSize:             100,
			SnippetLength:         100,
		},
		Telegram: TelegramConfig{
			Enabled:               false,
			Mode:                  "polling",
			ParseMode:             "Markdown",
			NotifyAdminsOnStartup: true,
		},
		Extraction: ExtractionConfig{
			TimeoutSeconds: 60,
			MaxFileBytes:   20 << 20,
			OCR: RecognizerConfig{
				Name:      "vision-ocr",
				Enabled:   false,
				APIBase:   "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				MaxTokens: 1024,
			},
			Transcription: []RecognizerConfig{
				{
					Name:    "whisper",
					Enabled: false,
					APIBase: "https://api.openai.com/v1",
					Model:   "whisper-1",
				},
			},
		},
		Delivery: DeliveryConfig{
			TimeoutSeconds: 15,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			DBPath:  "~/.hwbot/activity.db",
		},
		Admin: AdminConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8443,
		},
		Digest: DigestConfig{
			Enabled:    false,
			Cron:       "0 18 * * 0", // Sundays 18:00
			WindowDays: 7,
		},
		Events: EventsConfig{
			Enabled:    false,
			Exchange:   "hwbot.events",
			RoutingKey: "homework.forwarded",
		},
	}
}
