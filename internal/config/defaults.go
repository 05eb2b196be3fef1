package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sakuin/data/db/models.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/sakuin/data/indices"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Ensemble.MaxConcurrency == 0 {
		cfg.Ensemble.MaxConcurrency = 4
	}
	if cfg.Ensemble.DefaultLimit == 0 {
		cfg.Ensemble.DefaultLimit = 10
	}
	if cfg.Ensemble.MaxLimit == 0 {
		cfg.Ensemble.MaxLimit = 100
	}
	if cfg.Ensemble.TimeoutSeconds == 0 {
		cfg.Ensemble.TimeoutSeconds = 30
	}
	for i := range cfg.Projects {
		if cfg.Projects[i].Analyzer == "" {
			cfg.Projects[i].Analyzer = "simple"
		}
		if cfg.Projects[i].Language == "" {
			cfg.Projects[i].Language = "en"
		}
		for j := range cfg.Projects[i].Backends {
			if cfg.Projects[i].Backends[j].Weight == 0 {
				cfg.Projects[i].Backends[j].Weight = 1
			}
		}
	}
}
