package renderer

// Scene geometry: one draw per node with a model matrix uniform.
const meshVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;

uniform mat4 uViewProj;
uniform mat4 uModel;

out vec3 vNormal;
out vec3 vWorldPos;
out vec2 vTexCoord;

void main() {
	vec4 world = uModel * vec4(aPos, 1.0);
	vWorldPos = world.xyz;
	vNormal = mat3(transpose(inverse(uModel))) * aNormal;
	vTexCoord = aTexCoord;
	gl_Position = uViewProj * world;
}
`

// Instanced primitives: the model matrix and color come from per-instance
// attributes.
const instancedVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;
layout (location = 3) in mat4 aModel;
layout (location = 7) in vec4 aColor;

uniform mat4 uViewProj;

out vec3 vNormal;
out vec3 vWorldPos;
out vec2 vTexCoord;
out vec4 vColor;

void main() {
	vec4 world = aModel * vec4(aPos, 1.0);
	vWorldPos = world.xyz;
	vNormal = mat3(aModel) * aNormal;
	vTexCoord = aTexCoord;
	vColor = aColor;
	gl_Position = uViewProj * world;
}
`

const litFragmentShader = `
#version 410 core

in vec3 vNormal;
in vec3 vWorldPos;
in vec2 vTexCoord;

uniform vec4 uColor;
uniform bool uUseTexture;
uniform sampler2D uTexture;
uniform vec3 uLightDir;
uniform vec3 uEyePos;
uniform float uSpecular;
uniform float uShininess;
uniform float uEmission;
uniform float uAmbient;

out vec4 FragColor;

void main() {
	vec4 base = uColor;
	if (uUseTexture) {
		base *= texture(uTexture, vTexCoord);
	}
	vec3 n = normalize(vNormal);
	vec3 l = normalize(-uLightDir);
	float diff = abs(dot(n, l));
	vec3 v = normalize(uEyePos - vWorldPos);
	vec3 h = normalize(l + v);
	float spec = uSpecular * pow(max(dot(n, h), 0.0), max(uShininess * 128.0, 1.0));
	vec3 rgb = base.rgb * (uAmbient + (1.0 - uAmbient) * diff) + vec3(spec) + base.rgb * uEmission;
	FragColor = vec4(rgb, base.a);
}
`

const instancedFragmentShader = `
#version 410 core

in vec3 vNormal;
in vec3 vWorldPos;
in vec2 vTexCoord;
in vec4 vColor;

uniform vec3 uLightDir;
uniform float uAmbient;

out vec4 FragColor;

void main() {
	vec3 n = normalize(vNormal);
	float diff = abs(dot(n, normalize(-uLightDir)));
	FragColor = vec4(vColor.rgb * (uAmbient + (1.0 - uAmbient) * diff), vColor.a);
}
`
