package server

import (
	"fmt"
	"net/http"
	"strings"

	"dupegraph/internal/models"
)

const maxHashesPerRequest = 10000

func normalizeHash(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", badRequestCode(fmt.Errorf("hash is required"), ErrCodeMissingRequired)
	}
	hash, err := models.NormalizeHash(value)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidHash)
	}
	return hash, nil
}

func requireHashes(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, badRequestCode(fmt.Errorf("hashes are required"), ErrCodeMissingRequired)
	}
	if len(values) > maxHashesPerRequest {
		return nil, badRequest(fmt.Errorf("at most %d hashes per request", maxHashesPerRequest))
	}
	hashes, err := models.NormalizeHashes(values)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidHash)
	}
	return hashes, nil
}

func requirePathHash(r *http.Request) (string, error) {
	return normalizeHash(r.PathValue("hash"))
}

func normalizeAction(value string) (models.Action, error) {
	action, err := models.ParseAction(value)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidAction)
	}
	return action, nil
}

func normalizePairs(pairs []models.PotentialPair) ([]models.PotentialPair, error) {
	if len(pairs) == 0 {
		return nil, badRequestCode(fmt.Errorf("pairs are required"), ErrCodeMissingRequired)
	}
	if len(pairs) > maxHashesPerRequest {
		return nil, badRequestCode(fmt.Errorf("at most %d pairs per request", maxHashesPerRequest), ErrCodeInvalidPairCount)
	}
	out := make([]models.PotentialPair, 0, len(pairs))
	for _, pair := range pairs {
		a, err := normalizeHash(pair.A)
		if err != nil {
			return nil, err
		}
		b, err := normalizeHash(pair.B)
		if err != nil {
			return nil, err
		}
		if pair.Distance < 0 {
			return nil, badRequest(fmt.Errorf("distance must be >= 0"))
		}
		out = append(out, models.PotentialPair{A: a, B: b, Distance: pair.Distance})
	}
	return out, nil
}
