// Package gcp builds the Google Cloud clients used by the API.
package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// GetApp creates a Firebase App. An empty credentialsFile uses the ambient
// application default credentials.
func GetApp(ctx context.Context, credentialsFile string) (*firebase.App, error) {
	if credentialsFile != "" {
		return firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	}
	return firebase.NewApp(ctx, nil)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, credentialsFile string) (*firebaseauth.Client, error) {
	app, err := GetApp(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}
	return fbAuth, nil
}
