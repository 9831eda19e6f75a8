package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"agent-wallet-bridge/internal/core/ports"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var _ ports.AgentClient = (*Client)(nil)

// ListPlayers fetches one page of the agent's players.
func (c *Client) ListPlayers(ctx context.Context, page, limit int) (*ports.PlayerPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	data, err := c.call(ctx, "players.list", http.MethodGet, "/api/v1/players?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	list := data.Get("players")
	if !list.Exists() && data.IsArray() {
		list = data
	}

	out := &ports.PlayerPage{Total: int(data.Get("total").Int())}
	var parseErr error
	list.ForEach(func(_, p gjson.Result) bool {
		balance, err := parseAmount(p.Get("balance"))
		if err != nil {
			parseErr = fmt.Errorf("player %s balance: %w", p.Get("id").String(), err)
			return false
		}
		out.Players = append(out.Players, ports.Player{
			ID:       p.Get("id").String(),
			Username: p.Get("username").String(),
			Balance:  balance,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// GetPlayerBalance returns a player's balance on the platform.
func (c *Client) GetPlayerBalance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	data, err := c.call(ctx, "players.balance", http.MethodGet, "/api/v1/players/"+url.PathEscape(playerID)+"/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	return parseAmount(data.Get("balance"))
}

// Deposit moves amount from the agent cashier to the player.
func (c *Client) Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	_, err := c.call(ctx, "players.deposit", http.MethodPost,
		"/api/v1/players/"+url.PathEscape(playerID)+"/deposit", amountBody(amount))
	return err
}

// Withdraw moves amount from the player back to the agent cashier.
func (c *Client) Withdraw(ctx context.Context, playerID string, amount decimal.Decimal) error {
	_, err := c.call(ctx, "players.withdraw", http.MethodPost,
		"/api/v1/players/"+url.PathEscape(playerID)+"/withdraw", amountBody(amount))
	return err
}

// RegisterPlayer creates a player under the agent. The platform does not
// return the new id; callers find it by listing players.
func (c *Client) RegisterPlayer(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "players.register", http.MethodPost, "/api/v1/players", map[string]string{
		"username": username,
		"password": password,
	})
	return err
}

// GetCashierBalance returns the balance of the agent's cashier wallet.
func (c *Client) GetCashierBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := c.call(ctx, "agent.wallets", http.MethodGet, "/api/v1/agent/wallets", nil)
	if err != nil {
		return decimal.Zero, err
	}

	wallets := data.Get("wallets")
	if !wallets.Exists() && data.IsArray() {
		wallets = data
	}
	for _, w := range wallets.Array() {
		if w.Get("type").String() == "cashier" {
			return parseAmount(w.Get("balance"))
		}
	}
	if b := data.Get("balance"); b.Exists() {
		return parseAmount(b)
	}
	return decimal.Zero, fmt.Errorf("agent wallets: no cashier wallet in response")
}

func amountBody(amount decimal.Decimal) map[string]any {
	return map[string]any{"amount": json.Number(amount.StringFixed(2))}
}

func parseAmount(v gjson.Result) (decimal.Decimal, error) {
	if !v.Exists() {
		return decimal.Zero, fmt.Errorf("amount missing")
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", v.String(), err)
	}
	return d, nil
}
