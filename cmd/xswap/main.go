package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	xswapDataDir = btcutil.AppDataDir("xswap-cli", false)
	statePath    = path.Join(xswapDataDir, "state.json")

	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.0.1"
	app.Name = "xswap CLI"
	app.Usage = "Command line interface for xswapd operators and makers"
	app.Commands = append(
		app.Commands,
		&config,
		&order,
		&listorders,
		&swap,
		&listswaps,
		&webhook,
		&listwebhooks,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("invalid config state: %w", err)
	}

	return data, nil
}

func setState(data map[string]string) error {
	if _, err := os.Stat(xswapDataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(xswapDataDir, os.ModeDir|0755); err != nil {
			return err
		}
	}

	currentData, err := getState()
	if err != nil {
		currentData = map[string]string{}
	}

	mergedData := merge(currentData, data)

	jsonString, err := json.Marshal(mergedData)
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, jsonString, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func merge(maps ...map[string]string) map[string]string {
	merge := make(map[string]string, 0)
	for _, m := range maps {
		for k, v := range m {
			merge[k] = v
		}
	}
	return merge
}

func getServerURL() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	url, ok := state["server"]
	if !ok || url == "" {
		return "", errors.New("set server with `config set server`")
	}
	return strings.TrimRight(url, "/"), nil
}

type daemonError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"error"`
	Field  string `json:"field"`
}

func (e *daemonError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Msg)
	}
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// doRequest sends the request to the daemon and returns the raw JSON body of
// the response.
func doRequest(method, endpoint string, body interface{}) ([]byte, error) {
	serverURL, err := getServerURL()
	if err != nil {
		return nil, err
	}
	return sendRequest(serverURL, method, endpoint, body)
}

func sendRequest(
	serverURL, method, endpoint string, body interface{},
) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, serverURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		derr := &daemonError{Status: resp.StatusCode}
		// nolint
		json.Unmarshal(respBody, derr)
		return nil, derr
	}
	return respBody, nil
}

func printRespJSON(resp []byte) {
	if len(resp) <= 0 {
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "\t"); err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(out.String())
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[xswap] %v\n", err)
	}
	os.Exit(1)
}
