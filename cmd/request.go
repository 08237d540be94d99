package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/tasktracker-cli/internal/application"
)

func newRequestCmd(app *app) *cobra.Command {
	var (
		data    string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Call the API with the stored session",
		Long:  "Send an authenticated request to the task tracker API. An expired access token is renewed once and the request retried.",
		Example: `  tt request GET /tasks?page=1
  tt request POST /tasks --data '{"title":"Write docs"}'`,
		Args: cobra.ExactArgs(2),
		RunE: app.run(func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], args[1], data, headers)
			if err != nil {
				return err
			}

			if _, _, err := app.service.Restore(cmd.Context()); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}

			resp, err := app.service.ExecuteAuthenticated(cmd.Context(), req)
			if len(resp.Body) > 0 {
				if writeErr := writeBody(cmd, resp.Body); writeErr != nil && err == nil {
					err = writeErr
				}
			}
			return err
		}),
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header as 'Name: value' (repeatable)")

	return cmd
}

func buildRequest(method, rawPath, data string, headers []string) (application.Request, error) {
	parsed, err := url.Parse(rawPath)
	if err != nil {
		return application.Request{}, fmt.Errorf("parse path %q: %w", rawPath, err)
	}
	if parsed.IsAbs() || parsed.Host != "" {
		return application.Request{}, fmt.Errorf("path %q must be relative to api.base_url", rawPath)
	}

	req := application.Request{
		Method: strings.ToUpper(method),
		Path:   "/" + strings.TrimLeft(parsed.Path, "/"),
		Query:  parsed.Query(),
		Header: http.Header{},
	}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return application.Request{}, fmt.Errorf("--data is not valid JSON")
		}
		req.Body = []byte(data)
	}
	for _, raw := range headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return application.Request{}, fmt.Errorf("invalid header %q, want 'Name: value'", raw)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return req, nil
}

func writeBody(cmd *cobra.Command, body []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}

	out := cmd.OutOrStdout()
	if _, err := out.Write(body); err != nil {
		return err
	}
	if !bytes.HasSuffix(body, []byte("\n")) {
		_, err := fmt.Fprintln(out)
		return err
	}
	return nil
}
