package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/evm"
	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
	"github.com/goodnatureofminers/txbatch7000-backend/pkg/workerpool"
)

type signRequest struct {
	Message string `json:"message"`
}

type signResponse struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	signature, err := h.signer.SignText([]byte(req.Message))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "sign message: "+err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, signResponse{
		Address:   h.signer.Address().Hex(),
		Message:   req.Message,
		Signature: signature,
	})
}

type signTypedRequest struct {
	Data json.RawMessage `json:"data"`
}

type signTypedResponse struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

func (h *Handler) handleSignTyped(w http.ResponseWriter, r *http.Request) {
	var req signTypedRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if len(req.Data) == 0 {
		h.writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	signature, err := h.signer.SignTypedPayload(req.Data)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "sign typed data: "+err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, signTypedResponse{
		Address:   h.signer.Address().Hex(),
		Signature: signature,
	})
}

type sendRawRequest struct {
	To           string  `json:"to"`
	Data         string  `json:"data,omitempty"`
	Value        string  `json:"value,omitempty"`
	GasLimit     uint64  `json:"gasLimit,omitempty"`
	GasPrice     string  `json:"gasPrice,omitempty"`
	Count        int     `json:"count,omitempty"`
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
	MaxRetries   int     `json:"maxRetries,omitempty"`
}

func (h *Handler) handleSendRaw(w http.ResponseWriter, r *http.Request) {
	var req sendRawRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	h.queueJob(w, model.BatchConfig{
		Mode: model.ModeRaw,
		Transactions: []model.RawTx{{
			To:       req.To,
			Data:     req.Data,
			Value:    req.Value,
			GasLimit: req.GasLimit,
			GasPrice: req.GasPrice,
			Count:    req.Count,
		}},
		DelaySeconds: req.DelaySeconds,
		MaxRetries:   req.MaxRetries,
	})
}

type batchSendRawRequest struct {
	Transactions []model.RawTx `json:"transactions"`
	DelaySeconds float64       `json:"delaySeconds,omitempty"`
	MaxRetries   int           `json:"maxRetries,omitempty"`
	GasLimit     uint64        `json:"gasLimit,omitempty"`
	GasPrice     string        `json:"gasPrice,omitempty"`
}

func (h *Handler) handleBatchSendRaw(w http.ResponseWriter, r *http.Request) {
	var req batchSendRawRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	h.queueJob(w, model.BatchConfig{
		Mode:         model.ModeRaw,
		Transactions: req.Transactions,
		DelaySeconds: req.DelaySeconds,
		MaxRetries:   req.MaxRetries,
		GasLimit:     req.GasLimit,
		GasPrice:     req.GasPrice,
	})
}

type sendEthRequest struct {
	To           string  `json:"to"`
	Value        string  `json:"value"`
	Count        int     `json:"count,omitempty"`
	GasPrice     string  `json:"gasPrice,omitempty"`
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
	MaxRetries   int     `json:"maxRetries,omitempty"`
}

func (h *Handler) handleSendEth(w http.ResponseWriter, r *http.Request) {
	var req sendEthRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	h.queueJob(w, model.BatchConfig{
		Mode: model.ModeEthTransfer,
		Transactions: []model.RawTx{{
			To:       req.To,
			Value:    req.Value,
			GasPrice: req.GasPrice,
			Count:    req.Count,
		}},
		DelaySeconds: req.DelaySeconds,
		MaxRetries:   req.MaxRetries,
	})
}

type tokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Balance  string `json:"balance"`
}

type walletResponse struct {
	Address string     `json:"address"`
	Balance string     `json:"balance"`
	Token   *tokenInfo `json:"token,omitempty"`
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := h.signer.Address()

	balance, err := h.chain.BalanceAt(ctx, address, nil)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "query balance: "+err.Error())
		return
	}
	resp := walletResponse{
		Address: address.Hex(),
		Balance: evm.FormatEther(balance),
	}

	if token := r.URL.Query().Get("token"); token != "" {
		if !common.IsHexAddress(token) {
			h.writeError(w, http.StatusBadRequest, "malformed token address")
			return
		}
		info, err := h.tokenInfo(ctx, common.HexToAddress(token), address)
		if err != nil {
			h.writeError(w, http.StatusBadGateway, "query token: "+err.Error())
			return
		}
		resp.Token = info
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) tokenInfo(ctx context.Context, token, owner common.Address) (*tokenInfo, error) {
	call := func(pack func() ([]byte, error)) ([]byte, error) {
		data, err := pack()
		if err != nil {
			return nil, err
		}
		return h.chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	}

	out, err := call(evm.PackDecimals)
	if err != nil {
		return nil, fmt.Errorf("decimals: %w", err)
	}
	decimals, err := evm.UnpackDecimals(out)
	if err != nil {
		return nil, err
	}

	out, err = call(evm.PackSymbol)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	symbol, err := evm.UnpackSymbol(out)
	if err != nil {
		return nil, err
	}

	out, err = call(func() ([]byte, error) { return evm.PackBalanceOf(owner) })
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	balance, err := evm.UnpackBalance(out)
	if err != nil {
		return nil, err
	}

	return &tokenInfo{
		Address:  token.Hex(),
		Symbol:   symbol,
		Decimals: decimals,
		Balance:  evm.FormatUnits(balance, int(decimals)),
	}, nil
}

type generateWalletsRequest struct {
	Count int `json:"count"`
}

type generatedWallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

type generateWalletsResponse struct {
	Wallets []generatedWallet `json:"wallets"`
}

func (h *Handler) handleGenerateWallets(w http.ResponseWriter, r *http.Request) {
	var req generateWalletsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if req.Count < 1 || req.Count > maxGeneratedWallets {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("count must be between 1 and %d", maxGeneratedWallets))
		return
	}

	workers := h.walletWorkers
	if workers > req.Count {
		workers = req.Count
	}
	indices := make([]int, req.Count)
	for i := range indices {
		indices[i] = i
	}

	wallets, err := workerpool.Collect(r.Context(), workers, indices,
		func(context.Context, int) (generatedWallet, error) {
			wallet, err := evm.GenerateWallet()
			if err != nil {
				return generatedWallet{}, err
			}
			return generatedWallet{
				Address:    wallet.Address().Hex(),
				PrivateKey: wallet.PrivateKeyHex(),
			}, nil
		})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "generate wallets: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, generateWalletsResponse{Wallets: wallets})
}
