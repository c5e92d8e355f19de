package utils

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirestoreConfig selects the Firebase project and credentials.
// Empty CredentialsFile falls back to application default credentials.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// OpenFirestore initializes a Firebase app and returns its Firestore client.
// The caller owns the client and must Close it on shutdown.
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*firestore.Client, error) {
	if cfg.ProjectID == "" && cfg.CredentialsFile == "" {
		return nil, errors.New("firestore: project id or credentials file is required")
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, err
	}
	return app.Firestore(ctx)
}
