package bybit

import (
	"context"
)

// GetBalance returns the free balance of currency in the trading account
func (c *Client) GetBalance(ctx context.Context, currency string) (float64, error) {
	params := map[string]interface{}{
		"accountType": c.accountType,
		"coin":        currency,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return 0, transportError("GetAccountWallet", err)
	}
	return parseBalance(result, currency)
}

func parseBalance(response interface{}, currency string) (float64, error) {
	var walletResult struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				Locked        string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult("GetAccountWallet", response, &walletResult); err != nil {
		return 0, err
	}

	for _, account := range walletResult.List {
		for _, coin := range account.Coin {
			if coin.Coin == currency {
				free := decOrZero(coin.WalletBalance).Sub(decOrZero(coin.Locked))
				return free.InexactFloat64(), nil
			}
		}
	}
	// a coin never held is simply absent from the wallet
	return 0, nil
}
