package connection

import (
	"fmt"
	"runtime"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
	"github.com/librespot-org/librespot-sub003/internal/credentials"
)

const (
	fieldLoginUsername = 1
	fieldLoginAuthType  = 2
	fieldLoginAuthData  = 3

	fieldEncryptedLoginCreds  = 1
	fieldEncryptedSystemInfo  = 2
	fieldEncryptedVersionStr  = 3

	fieldSystemInfoCPUFamily = 1
	fieldSystemInfoOS        = 2
	fieldSystemInfoSystemStr = 3
	fieldSystemInfoDeviceID  = 4

	cpuFamilyUnknown = 0
	osUnknown        = 0

	clientVersionString = "librespot-sub003"
)

// WelcomeInfo is extracted from a successful APWelcome frame.
type WelcomeInfo struct {
	CanonicalUsername         string
	ReusableCredentials        credentials.Credentials
}

// LoginError carries the server's typed rejection reason.
type LoginError struct {
	Code string
}

func (e *LoginError) Error() string { return fmt.Sprintf("login failed: %s", e.Code) }

// Login sends ClientResponseEncrypted with creds over an already-handshaken
// Codec and waits for APWelcome or AuthFailure.
func Login(codec *Codec, creds credentials.Credentials, deviceID string) (*WelcomeInfo, error) {
	var loginCreds []byte
	loginCreds = appendBytesField(loginCreds, fieldLoginUsername, []byte(creds.Username))
	loginCreds = appendVarintField(loginCreds, fieldLoginAuthType, uint64(creds.AuthType))
	loginCreds = appendBytesField(loginCreds, fieldLoginAuthData, creds.AuthData)

	var systemInfo []byte
	systemInfo = appendVarintField(systemInfo, fieldSystemInfoCPUFamily, cpuFamilyUnknown)
	systemInfo = appendVarintField(systemInfo, fieldSystemInfoOS, osUnknown)
	systemInfo = appendBytesField(systemInfo, fieldSystemInfoSystemStr, []byte(runtime.GOOS+"/"+runtime.GOARCH))
	systemInfo = appendBytesField(systemInfo, fieldSystemInfoDeviceID, []byte(deviceID))

	var packet []byte
	packet = appendMessageField(packet, fieldEncryptedLoginCreds, loginCreds)
	packet = appendMessageField(packet, fieldEncryptedSystemInfo, systemInfo)
	packet = appendBytesField(packet, fieldEncryptedVersionStr, []byte(clientVersionString))

	if err := codec.WriteFrame(CmdLogin, packet); err != nil {
		return nil, err
	}

	cmd, payload, err := codec.ReadFrame()
	if err != nil {
		return nil, err
	}

	switch cmd {
	case CmdAPWelcome:
		return parseWelcome(payload)
	case CmdAuthFailure:
		code, _ := findBytesField(payload, 1)
		return nil, coreerr.PermissionDenied(&LoginError{Code: string(code)})
	default:
		return nil, coreerr.Unavailable(fmt.Errorf("unexpected frame %s during login", cmd))
	}
}

func parseWelcome(payload []byte) (*WelcomeInfo, error) {
	username, ok := findBytesField(payload, 1)
	if !ok {
		return nil, fmt.Errorf("welcome missing canonical_username")
	}
	authTypeBytes, _ := findBytesField(payload, 2)
	authData, _ := findBytesField(payload, 3)

	authType := credentials.AuthStored
	if len(authTypeBytes) == 1 {
		authType = credentials.AuthType(authTypeBytes[0])
	}

	return &WelcomeInfo{
		CanonicalUsername: string(username),
		ReusableCredentials: credentials.Credentials{
			Username: string(username),
			AuthType: authType,
			AuthData: authData,
		},
	}, nil
}
