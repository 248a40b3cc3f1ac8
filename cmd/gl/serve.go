package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"goalline/internal/app"
	"goalline/internal/mcptools"
	"goalline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serves the import API and record endpoints.
Bearer auth is on when the variable named by server.jwt_secret_env
(GOALLINE_JWT_SECRET by default) is set; mint tokens with 'gl serve token'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{JWTSecret: os.Getenv(a.Config.Server.JWTSecretEnv)}
				if authCfg.JWTSecret == "" {
					a.Log.Warnf("%s is not set; the API accepts unauthenticated requests", a.Config.Server.JWTSecretEnv)
				}
				handler, err := server.New(server.Config{Engine: a.Engine, Wizard: a.Wizard, BasePath: basePath, Auth: authCfg, Log: a.Log})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving goalline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.AddCommand(serveTokenCmd())
	return cmd
}

func serveTokenCmd() *cobra.Command {
	var subject string
	var scopes []string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the server secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				secret := os.Getenv(a.Config.Server.JWTSecretEnv)
				if secret == "" {
					return withCode(exitUsage, fmt.Errorf("%s is required to sign tokens", a.Config.Server.JWTSecretEnv))
				}
				token, err := server.SignToken(secret, subject, scopes...)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "token scopes")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve goalline tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return mcpserver.ServeStdio(mcptools.NewServer(a.Engine))
			})
		},
	}
}
