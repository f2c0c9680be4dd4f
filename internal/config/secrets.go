package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)

	// Slices and maps are copied so the redacted value cannot alias cfg.
	out.Markets = append([]MarketConfig(nil), cfg.Markets...)
	out.Simulator.Correlations = append([]CorrelationConfig(nil), cfg.Simulator.Correlations...)
	out.Alerts.Thresholds = append([]ThresholdConfig(nil), cfg.Alerts.Thresholds...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	if cfg.Calculator.TransmissionCosts != nil {
		out.Calculator.TransmissionCosts = make(map[string]float64, len(cfg.Calculator.TransmissionCosts))
		for k, v := range cfg.Calculator.TransmissionCosts {
			out.Calculator.TransmissionCosts[k] = v
		}
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
