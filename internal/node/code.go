package node

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
)

const (
	minRoomCode = 100000
	maxRoomCode = 999999
)

// GenerateRoomCode returns a random six digit code in 100000..999999.
func GenerateRoomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxRoomCode-minRoomCode+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+minRoomCode), nil
}

func ValidRoomCode(code string) bool {
	return protocol.ValidRoomCode(code)
}
