//go:build !js

package transport

// CurrentTarget 当前构建的执行环境
const CurrentTarget = TargetNative
