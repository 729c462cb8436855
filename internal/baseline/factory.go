package baseline

import "deltasync/internal/deltaerr"

// Config selects and configures one of the three baseline backends. Exactly
// one of the nested configs is read, chosen by Backend.
type Config struct {
	Backend string // "filesystem" | "objectbucket" | "relational"

	Filesystem struct {
		Path string
	}
	ObjectBucket struct {
		BucketName string
		KeyPrefix  string
		Region     string
		Endpoint   string
		AccessKey  string
		SecretKey  string
		UseSSL     bool
	}
	Relational RelationalConfig
}

// NewStore builds the Store described by cfg. The caller is still
// responsible for calling Initialize.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "filesystem":
		return &Filesystem{Path: cfg.Filesystem.Path}, nil
	case "objectbucket":
		return &ObjectBucket{
			BucketName: cfg.ObjectBucket.BucketName,
			KeyPrefix:  cfg.ObjectBucket.KeyPrefix,
			Region:     cfg.ObjectBucket.Region,
			Endpoint:   cfg.ObjectBucket.Endpoint,
			AccessKey:  cfg.ObjectBucket.AccessKey,
			SecretKey:  cfg.ObjectBucket.SecretKey,
			UseSSL:     cfg.ObjectBucket.UseSSL,
		}, nil
	case "relational":
		return &Relational{Config: cfg.Relational}, nil
	default:
		return nil, deltaerr.Newf(deltaerr.ConfigError, "unknown baseline backend: %q", cfg.Backend)
	}
}
