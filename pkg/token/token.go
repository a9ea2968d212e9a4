package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 検証失敗の理由。エラーメッセージはAPIレスポンスにそのまま載るため、
// 旧Node.js実装と同一の文字列を維持すること。
var (
	// ErrMissingToken はトークンが空の場合のエラー。
	ErrMissingToken = errors.New("Missing token")
	// ErrMalformedToken はトークンが3セグメントに分割できない場合のエラー。
	ErrMalformedToken = errors.New("Malformed token")
	// ErrInvalidEncoding はヘッダーまたはクレームのbase64url+JSONデコードに失敗した場合のエラー。
	ErrInvalidEncoding = errors.New("Invalid token encoding")
	// ErrUnsupportedAlgorithm は署名アルゴリズムがHS256以外の場合のエラー。
	ErrUnsupportedAlgorithm = errors.New("Unsupported JWT alg (expected HS256)")
	// ErrInvalidSignature は署名が一致しない場合のエラー。
	ErrInvalidSignature = errors.New("Invalid signature")
	// ErrNotYetValid は現在時刻がnbfより前の場合のエラー。
	ErrNotYetValid = errors.New("Token not active yet (nbf)")
	// ErrExpired は現在時刻がexp以降の場合のエラー。
	ErrExpired = errors.New("Token expired (exp)")
	// ErrInvalidIssuer はissクレームが設定値と一致しない場合のエラー。
	ErrInvalidIssuer = errors.New("Invalid issuer (iss)")
	// ErrInvalidAudience はaudクレームが設定値と一致しない場合のエラー。
	ErrInvalidAudience = errors.New("Invalid audience (aud)")
	// ErrMissingBearerToken はAuthorizationヘッダーが"Bearer "で始まらない場合のエラー。
	ErrMissingBearerToken = errors.New("Missing Bearer token")
)

// Service はHS256署名付きBearerトークンの発行・検証サービス。
// 永続化も外部通信も行わない。
type Service struct {
	// secret はHMAC-SHA256署名用の共有秘密鍵。
	secret []byte
	// issuer は空でない場合にissクレームの一致を要求する。
	issuer string
	// audience は空でない場合にaudクレームの一致を要求する。
	audience string
}

// NewService は新しいトークンサービスを生成する。
// issuerとaudienceは空文字列の場合は検証対象外となる。
func NewService(secret, issuer, audience string) *Service {
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Sign はクレームをHS256で署名したトークン文字列を返す。
// クレームの内容は検証しない。整合性は呼び出し側の責任。
func (s *Service) Sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Issue は指定したサブジェクトとTTLで標準クレームを組み立てて署名する。
// iat/nbfは現在時刻、expは現在時刻+TTL。iss/audは設定されている場合のみ付与する。
func (s *Service) Issue(sub string, ttl time.Duration) (string, error) {
	now := time.Now().Unix()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now,
		"nbf": now,
		"exp": now + int64(ttl.Seconds()),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}
	return s.Sign(claims)
}

// Verify はトークンを検証し、成功時にデコード済みクレームを返す。
// 失敗理由は以下の順序で判定し、最初の失敗で打ち切る:
// 空トークン → セグメント数 → ヘッダー/クレームのエンコーディング
// → アルゴリズム → 署名 → nbf → exp → iss → aud。
// エンコーディング不正が対象とするのはヘッダーとクレームのセグメントのみで、
// 署名セグメントのデコード失敗は署名不一致として扱う。
func (s *Service) Verify(tokenString string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformedToken
	}

	// エンコーディングとアルゴリズムはライブラリに渡す前に自前で検査する。
	// ライブラリのパースエラー分類に頼ると、未知のアルゴリズムや
	// 署名セグメントのデコード失敗が誤った理由に落ちる。
	var header struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(parts[0], &header); err != nil {
		return nil, ErrInvalidEncoding
	}
	if err := decodeSegment(parts[1], &jwt.MapClaims{}); err != nil {
		return nil, ErrInvalidEncoding
	}
	if header.Alg != jwt.SigningMethodHS256.Alg() {
		return nil, ErrUnsupportedAlgorithm
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, jwt.WithoutClaimsValidation()); err != nil {
		// エンコーディングとアルゴリズムは検査済みなので、残る失敗は署名の不正のみ。
		return nil, ErrInvalidSignature
	}

	now := time.Now().Unix()
	if nbf, ok := numericClaim(claims, "nbf"); ok && now < nbf {
		return nil, ErrNotYetValid
	}
	if exp, ok := numericClaim(claims, "exp"); ok && now >= exp {
		return nil, ErrExpired
	}
	if s.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != s.issuer {
			return nil, ErrInvalidIssuer
		}
	}
	if s.audience != "" {
		if aud, _ := claims["aud"].(string); aud != s.audience {
			return nil, ErrInvalidAudience
		}
	}

	return claims, nil
}

// AuthenticateRequest はHTTPヘッダーからBearerトークンを取り出して検証する。
// "Bearer "プレフィックス（大文字小文字区別、スペース1つ）が必須。
func (s *Service) AuthenticateRequest(header http.Header) (jwt.MapClaims, error) {
	value := header.Get("Authorization")
	tokenString, found := strings.CutPrefix(value, "Bearer ")
	if !found {
		return nil, ErrMissingBearerToken
	}
	return s.Verify(strings.TrimSpace(tokenString))
}

// keyFunc は署名検証用の鍵を返す。HS256以外のアルゴリズムは拒否する。
// 署名比較自体はgolang-jwtのHMACメソッドがhmac.Equalで定数時間に行う。
func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, ErrUnsupportedAlgorithm
	}
	return s.secret, nil
}

// decodeSegment はbase64url（パディングなし）のJWTセグメントをJSONとしてデコードする。
func decodeSegment(seg string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// numericClaim はクレームを数値として取り出す。数値でない場合は存在しない扱い。
func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
