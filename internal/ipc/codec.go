package ipc

import (
	"encoding/json"

	"github.com/cortexd/cortexd/internal/types"
)

func decodeRequest(raw []byte) (types.RequestEnvelope, error) {
	var req types.RequestEnvelope
	if err := json.Unmarshal(raw, &req); err != nil {
		return types.RequestEnvelope{}, err
	}
	return req, nil
}

func encodeResponse(resp types.ResponseEnvelope) ([]byte, error) {
	return json.Marshal(resp)
}

func successResponse(id string, data any) types.ResponseEnvelope {
	return types.ResponseEnvelope{Success: true, Data: data, ID: id}
}

func errorResponse(id string, code int, message string) types.ResponseEnvelope {
	return types.ResponseEnvelope{
		Success: false,
		Error:   &types.ErrorDetail{Code: code, Message: message},
		ID:      id,
	}
}
